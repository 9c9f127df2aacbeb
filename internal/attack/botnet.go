package attack

import (
	"net/netip"

	"trafficgen/internal/config"
	"trafficgen/internal/packet"
)

// DefaultBotnetSize is the number of bots when attack_range is set without
// num_attackers.
const DefaultBotnetSize = 200

// botnet hands out source addresses from a fixed pool in per-attacker
// blocks: the first block of packets comes from the first bot, the next
// from the second, wrapping around the pool.
type botnet struct {
	prefix netip.Prefix
	// first skips the network address of prefixes wide enough to have one.
	first int
	hosts int
	size  int
	block int
	sent  int
}

func newBotnet(cfg config.Attack) (*botnet, error) {
	prefix, err := packet.ParseIPv4Prefix(cfg.AttackRange)
	if err != nil {
		return nil, config.Errorf("attack_range", "%v", err)
	}
	size := cfg.NumAttackers
	if size == 0 {
		size = DefaultBotnetSize
	}
	if size < 0 {
		return nil, config.Errorf("num_attackers", "must be >= 1")
	}
	b := &botnet{prefix: prefix, size: size, block: 1, hosts: 1 << (32 - prefix.Bits())}
	if prefix.Bits() <= 30 {
		b.first, b.hosts = 1, b.hosts-2
	}
	if cfg.NumPackets > 0 {
		b.block = max(cfg.NumPackets/size, 1)
	}
	return b, nil
}

// bot returns the address of the i-th bot.
func (b *botnet) bot(i int) netip.Addr {
	return packet.HostInPrefix(b.prefix, b.first+i%b.hosts)
}

func (b *botnet) next() netip.Addr {
	i := (b.sent / b.block) % b.size
	b.sent++
	return b.bot(i)
}

// supportsBotnet reports whether a kind can take its sources from a botnet.
// Reflection kinds spoof the victim's resolvers instead, and fragmentation
// and QUIC keep their own source models.
func (k Kind) supportsBotnet() bool {
	switch k {
	case KindSYNFlood, KindUDPFlood, KindHTTPFlood, KindICMPFlood, KindACKFlood, KindVolumetric:
		return true
	}
	return false
}
