package wire

import (
	"net"

	"github.com/tickloop/lockstep"
)

// DialUDP opens a UDP socket satisfying lockstep.Transport, bound to
// localAddr (use ":0" to let the OS pick a port).
func DialUDP(localAddr string) (lockstep.Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
