//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package cas

import (
	"context"
	"net"
)

// listenSharedUDP binds addr without port sharing; it fails while a CA
// repeater holds the port.
func listenSharedUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
