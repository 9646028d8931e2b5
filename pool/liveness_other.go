//go:build !unix

package pool

import "net"

// isAlive always reports true on platforms without a non-blocking peek
// syscall (notably Windows): a stale connection is instead caught lazily,
// by the first write/read against it returning an error, which the request
// job's transparent single retry (spec.md §4.7) already handles.
func isAlive(conn net.Conn) bool {
	return true
}
