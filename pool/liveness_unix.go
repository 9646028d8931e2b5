//go:build unix

package pool

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// isAlive non-destructively peeks at conn's socket to detect whether the
// peer has closed the connection while it sat idle in the pool (spec.md
// §4.2's "liveness peek before reuse"). A zero-length read reports EOF
// (peer closed) and a recv error other than EAGAIN/EWOULDBLOCK means the
// socket is broken; both count as dead. Data pending, EAGAIN, or a
// non-peekable conn counts as alive, since an H2
// connection can legitimately have a pending GOAWAY or SETTINGS frame
// queued without being dead.
func isAlive(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return true
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	alive := true
	buf := make([]byte, 1)
	controlErr := rawConn.Read(func(fd uintptr) bool {
		n, _, errno := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			alive = true
			return true
		}
		if errno != nil {
			alive = false
			return true
		}
		alive = n != 0
		return true
	})
	if controlErr != nil {
		return true
	}
	return alive
}
