package node

import (
	"net"
	"strings"

	"github.com/DerekChowAHOP/membership-protocol/pkg/gossip"
)

// NormalizeHostPort cuts the udp:// prefix from the input address and adds
// a default port when none is given.
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "udp://"); ok {
		addr = rest
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}

	return addr + ":" + defPort
}

// ParseAddress normalizes addr and converts it to a protocol address.
func ParseAddress(addr, defPort string) (gossip.Address, error) {
	return gossip.ParseAddress(NormalizeHostPort(addr, defPort))
}
