// Package identity derives the two self-identifying strings the API
// surface reports: a short node id derived from the machine's network
// interface, and a worker id defaulting to the hostname. Ported from
// Api::genId / Api::genWorkerId.
package identity

import (
	"encoding/hex"
	"net"
	"os"

	"golang.org/x/crypto/sha3"
)

// appKind is appended to the hash input exactly as APP_KIND does in the
// original; it has no meaning beyond domain-separating this hash from any
// other consumer of the same (port, MAC) pair.
const appKind = "miner"

// GenID returns override if non-empty; otherwise it hashes
// port || MAC || appKind through Keccak-256 and returns the first 8 bytes
// as 16 lowercase hex characters, using the first non-internal IPv4
// interface it finds. Returns "" if override is empty and no such
// interface exists.
func GenID(override string, port uint16) string {
	if override != "" {
		return override
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) != 6 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || !hasIPv4(addrs) {
			continue
		}

		input := make([]byte, 0, 2+6+len(appKind))
		input = append(input, byte(port), byte(port>>8))
		input = append(input, iface.HardwareAddr...)
		input = append(input, appKind...)

		hash := sha3.NewLegacyKeccak256()
		hash.Write(input)
		sum := hash.Sum(nil)
		return hex.EncodeToString(sum[:8])
	}
	return ""
}

func hasIPv4(addrs []net.Addr) bool {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && ip.To4() != nil {
			return true
		}
	}
	return false
}

// GenWorkerID returns override if non-empty; otherwise the machine's
// hostname, matching Api::genWorkerId's gethostname fallback.
func GenWorkerID(override string) string {
	if override != "" {
		return override
	}
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}
