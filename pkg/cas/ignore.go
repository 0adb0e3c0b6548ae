package cas

import (
	"fmt"
	"net"
	"strings"
)

// IgnoreList holds client addresses whose datagrams the server drops.
type IgnoreList struct {
	addrs map[string]struct{}
}

// ParseIgnoreList resolves each entry (an address or host name, with an
// optional port that is ignored).
func ParseIgnoreList(entries []string) (*IgnoreList, error) {
	l := &IgnoreList{addrs: make(map[string]struct{})}
	for _, e := range entries {
		for _, field := range strings.Fields(e) {
			host := field
			if h, _, err := net.SplitHostPort(field); err == nil {
				host = h
			}
			ips, err := net.LookupIP(host)
			if err != nil {
				return nil, fmt.Errorf("ignore list entry %q: %w", field, err)
			}
			for _, ip := range ips {
				l.addrs[ip.String()] = struct{}{}
			}
		}
	}
	return l, nil
}

// Contains reports whether ip is ignored.
func (l *IgnoreList) Contains(ip net.IP) bool {
	if l == nil || len(l.addrs) == 0 {
		return false
	}
	_, ok := l.addrs[ip.String()]
	return ok
}

// Len returns the number of ignored addresses.
func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.addrs)
}
