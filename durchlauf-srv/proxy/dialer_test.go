package proxy

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	socks5 "github.com/armon/go-socks5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSOCKS5Server(t *testing.T) string {
	t.Helper()

	server, err := socks5.New(&socks5.Config{})
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})

	go func() {
		_ = server.Serve(listener)
	}()

	return listener.Addr().String()
}

func TestDialDirect(t *testing.T) {
	host, port := startUpstream(t, func(conn net.Conn) {
		defer conn.Close()
		_, _ = conn.Write([]byte("direct"))
	})

	d := newUpstreamDialer(2*time.Second, "")
	conn, err := d.Dial(context.Background(), host, port)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "direct", string(data))
}

func TestDialThroughSOCKS5(t *testing.T) {
	host, port := startUpstream(t, func(conn net.Conn) {
		defer conn.Close()
		_, _ = conn.Write([]byte("via socks"))
	})

	socksAddr := startSOCKS5Server(t)

	d := newUpstreamDialer(2*time.Second, socksAddr)
	conn, err := d.Dial(context.Background(), host, port)
	require.NoError(t, err)
	defer conn.Close()

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "via socks", string(data))
}

func TestDialSOCKS5UpstreamUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	socksAddr := listener.Addr().String()
	require.NoError(t, listener.Close())

	d := newUpstreamDialer(1*time.Second, socksAddr)
	_, err = d.Dial(context.Background(), "example.com", 80)
	require.Error(t, err)

	var proxyErr *Error
	require.ErrorAs(t, err, &proxyErr)
	assert.Equal(t, ErrCodeSOCKS5DialFailed, proxyErr.Code)
}

func TestClassifyDialError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := splitAddr(t, listener.Addr().String())
	require.NoError(t, listener.Close())

	d := newUpstreamDialer(1*time.Second, "")
	_, err = d.Dial(context.Background(), host, port)
	require.Error(t, err)
	assert.Equal(t, OutcomeRefused, classifyDialError(err))

	assert.Equal(t, OutcomeError, classifyDialError(io.ErrUnexpectedEOF))

	// An unroutable address trips the dial timeout.
	_, err = d.Dial(context.Background(), "10.255.255.1", 81)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			assert.Equal(t, OutcomeTimeout, classifyDialError(err))
		}
	}
}
