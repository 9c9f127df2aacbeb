package benign

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/ssh"

	"trafficgen/internal/packet"
	"trafficgen/internal/rng"
	"trafficgen/internal/sampler"
)

const (
	sshClientBanner = "SSH-2.0-OpenSSH_9.6\r\n"
	sshServerBanner = "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.6\r\n"

	sshRecords = 5
)

// kexInitMsg is SSH_MSG_KEXINIT (RFC 4253 section 7.1), laid out for
// ssh.Marshal.
type kexInitMsg struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

var (
	kexAlgos     = []string{"curve25519-sha256", "curve25519-sha256@libssh.org", "ecdh-sha2-nistp256", "diffie-hellman-group14-sha256"}
	hostKeyAlgos = []string{ssh.KeyAlgoED25519, ssh.KeyAlgoECDSA256, ssh.KeyAlgoRSASHA512, ssh.KeyAlgoRSASHA256}
	ciphers      = []string{"chacha20-poly1305@openssh.com", "aes128-gcm@openssh.com", "aes256-gcm@openssh.com", "aes128-ctr"}
	macs         = []string{"hmac-sha2-256-etm@openssh.com", "hmac-sha2-256", "hmac-sha1"}
	compression  = []string{"none", "zlib@openssh.com"}
)

// kexInit renders one side's KEXINIT inside an unencrypted binary packet.
func kexInit(r *rand.Rand) []byte {
	msg := kexInitMsg{
		KexAlgos:                kexAlgos,
		ServerHostKeyAlgos:      hostKeyAlgos,
		CiphersClientServer:     ciphers,
		CiphersServerClient:     ciphers,
		MACsClientServer:        macs,
		MACsServerClient:        macs,
		CompressionClientServer: compression,
		CompressionServerClient: compression,
	}
	rng.Fill(r, msg.Cookie[:])
	return binaryPacket(r, ssh.Marshal(&msg))
}

// binaryPacket frames payload as packet_length, padding_length, payload and
// at least four bytes of padding, aligned to eight bytes.
func binaryPacket(r *rand.Rand, payload []byte) []byte {
	pad := 8 - (5+len(payload))%8
	if pad < 4 {
		pad += 8
	}
	out := make([]byte, 5, 5+len(payload)+pad)
	binary.BigEndian.PutUint32(out, uint32(1+len(payload)+pad))
	out[4] = byte(pad)
	out = append(out, payload...)
	return append(out, rng.Bytes(r, pad)...)
}

// sshSession emits a TCP handshake, version banners, both KEXINITs, a run
// of encrypted-looking records and the teardown.
func sshSession(t *tape, r *rand.Rand, s *sampler.Set, p peers) {
	c := newTCPConn(t, r, p.client, p.server, ephemeral(r), 22, sampler.TTL(r, s))
	c.handshake(r, true)

	psh := packet.TCPFields{PSH: true, ACK: true}
	t.wait(r, 0.01, 0.05)
	c.send(false, psh, []byte(sshServerBanner))
	t.wait(r, 0.001, 0.01)
	c.send(true, psh, []byte(sshClientBanner))
	t.wait(r, 0.001, 0.01)
	c.send(true, psh, kexInit(r))
	t.wait(r, 0.01, 0.05)
	c.send(false, psh, kexInit(r))

	for i := 0; i < sshRecords; i++ {
		t.wait(r, 0.05, 0.2)
		c.send(i%2 == 0, psh, rng.Bytes(r, rng.IntRange(r, 64, 512)))
	}
	t.wait(r, 0.001, 0.01)
	c.teardown(r)
}
