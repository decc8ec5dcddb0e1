package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/proxy"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

// upstreamDialer establishes outbound connections, either directly or
// through a configured SOCKS5 upstream proxy.
type upstreamDialer struct {
	connectTimeout time.Duration
	socks5Addr     string
}

func newUpstreamDialer(connectTimeout time.Duration, socks5Addr string) *upstreamDialer {
	return &upstreamDialer{
		connectTimeout: connectTimeout,
		socks5Addr:     socks5Addr,
	}
}

// Dial connects to host:port with the configured connect timeout.
func (d *upstreamDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	netDialer := &net.Dialer{Timeout: d.connectTimeout}

	if d.socks5Addr == "" {
		return netDialer.DialContext(ctx, "tcp", addr)
	}

	logger.Debug("Dialing %s via SOCKS5 upstream %s", addr, d.socks5Addr)
	socksDialer, err := proxy.SOCKS5("tcp", d.socks5Addr, nil, netDialer)
	if err != nil {
		return nil, NewProxyError(ErrCodeSOCKS5DialerFailed, GetErrorDescription(ErrCodeSOCKS5DialerFailed),
			fmt.Errorf("proxy %s: %w", d.socks5Addr, err))
	}

	if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		conn, err := ctxDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, NewProxyError(ErrCodeSOCKS5DialFailed, GetErrorDescription(ErrCodeSOCKS5DialFailed),
				fmt.Errorf("target %s via %s: %w", addr, d.socks5Addr, err))
		}
		return conn, nil
	}

	conn, err := socksDialer.Dial("tcp", addr)
	if err != nil {
		return nil, NewProxyError(ErrCodeSOCKS5DialFailed, GetErrorDescription(ErrCodeSOCKS5DialFailed),
			fmt.Errorf("target %s via %s: %w", addr, d.socks5Addr, err))
	}
	return conn, nil
}

// classifyDialError maps a dial failure onto a connection outcome:
// an actively refused connection is REFUSED, a connect timeout is TIMEOUT,
// anything else is ERROR.
func classifyDialError(err error) Outcome {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeError
}
