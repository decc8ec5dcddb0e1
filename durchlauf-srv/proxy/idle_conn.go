package proxy

import (
	"net"
	"time"
)

// idleConn wraps the client connection so the configured timeout acts as a
// per-read idle timeout rather than one absolute deadline for the whole
// connection. A fresh deadline is armed before every read; writes carry no
// deadline, so an error response can still be delivered after a timeout.
// A timeout of zero disables the deadline entirely.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func newIdleConn(conn net.Conn, timeout time.Duration) *idleConn {
	return &idleConn{Conn: conn, timeout: timeout}
}

func (c *idleConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

// CloseWrite half-closes the underlying connection when it supports it, so
// tunnel relays can signal EOF through the wrapper.
func (c *idleConn) CloseWrite() error {
	if cw, ok := c.Conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return nil
}
