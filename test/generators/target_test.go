package generators_test

import "net/netip"

var packetTarget = netip.MustParseAddr("10.10.1.2")
