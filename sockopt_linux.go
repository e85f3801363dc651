//go:build linux

package readaloud

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneSocket turns off Nagle and delayed ACKs so small synthesis control
// messages and audio chunks are not batched. Failures are ignored: tuning
// is advisory and the connection works without it.
func tuneSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tcp.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
}
