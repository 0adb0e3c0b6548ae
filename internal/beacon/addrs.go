package beacon

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// ParseAddrList parses a whitespace separated EPICS address list such as
// "10.0.0.255 192.168.1.7:5070". Entries without a port get defaultPort.
func ParseAddrList(list string, defaultPort int) ([]*net.UDPAddr, error) {
	var out []*net.UDPAddr
	for _, entry := range strings.Fields(list) {
		host, port := entry, defaultPort
		if h, p, err := net.SplitHostPort(entry); err == nil {
			n, err := strconv.Atoi(p)
			if err != nil || n <= 0 || n > 65535 {
				return nil, fmt.Errorf("address %q: bad port", entry)
			}
			host, port = h, n
		}
		addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", entry, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// BroadcastAddrs returns the IPv4 broadcast address of every up,
// broadcast capable, non-loopback interface.
func BroadcastAddrs(port int) []*net.UDPAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []*net.UDPAddr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast := broadcast(ipnet); bcast != nil {
				out = append(out, &net.UDPAddr{IP: bcast, Port: port})
			}
		}
	}
	return out
}

func broadcast(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil || len(n.Mask) != net.IPv4len {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range ip {
		out[i] = ip[i] | ^n.Mask[i]
	}
	return out
}

// localAddrs returns a sorted snapshot of local IPv4 interface addresses.
func localAddrs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var out []string
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			out = append(out, ipnet.IP.String())
		}
	}
	sort.Strings(out)
	return out
}

// addedAddrs returns addresses in next missing from prev. Both are sorted.
func addedAddrs(prev, next []string) []string {
	var added []string
	i := 0
	for _, a := range next {
		for i < len(prev) && prev[i] < a {
			i++
		}
		if i < len(prev) && prev[i] == a {
			continue
		}
		added = append(added, a)
	}
	return added
}

// IPv4ToUint32 packs an IPv4 address into the host order integer carried
// in CA headers. Non-IPv4 addresses yield 0.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
