// Package proxy implements the connection handling pipeline of the
// durchlauf forwarding proxy: admission control, request parsing, blocklist
// filtering, plain-HTTP forwarding and CONNECT tunneling.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/codefionn/durchlauf/durchlauf-srv/config"
	"github.com/codefionn/durchlauf/durchlauf-srv/filter"
	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
	"github.com/codefionn/durchlauf/durchlauf-srv/stats"
)

// acceptPollInterval bounds how long the accept loop blocks so it observes
// shutdown promptly.
const acceptPollInterval = 1 * time.Second

// effectiveUnlimited is the admission limit applied when max connections is
// configured as unlimited.
const effectiveUnlimited = 10000

// Server owns the listening socket and admission control. Each admitted
// connection is handled by its own goroutine; excess connections receive a
// 503 and are closed without queueing.
type Server struct {
	cfg       *config.Config
	blocklist *filter.Blocklist
	collector stats.Collector
	accessLog *logger.AccessLog
	dialer    *upstreamDialer

	listener net.Listener
	slots    *semaphore.Weighted
	shutdown atomic.Bool
}

// NewServer wires a server from its collaborators. A nil collector is
// replaced with a dummy so handlers never need nil checks.
func NewServer(cfg *config.Config, blocklist *filter.Blocklist, collector stats.Collector, accessLog *logger.AccessLog) *Server {
	if collector == nil {
		collector = stats.NewDummyCollector()
	}
	maxConns := int64(cfg.MaxConnections)
	if maxConns <= 0 {
		maxConns = effectiveUnlimited
	}
	return &Server{
		cfg:       cfg,
		blocklist: blocklist,
		collector: collector,
		accessLog: accessLog,
		dialer:    newUpstreamDialer(time.Duration(cfg.ConnectTimeoutSeconds)*time.Second, cfg.ForwardSocks5),
		slots:     semaphore.NewWeighted(maxConns),
	}
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress(), err)
	}
	return s.StartWithListener(listener)
}

// StartWithListener serves on the given listener until Stop is called.
func (s *Server) StartWithListener(listener net.Listener) error {
	s.listener = listener
	logger.Info("Proxy listening on %s", listener.Addr().String())

	tcpListener, _ := listener.(*net.TCPListener)

	for !s.shutdown.Load() {
		// Poll with a short deadline so a shutdown request is observed
		// between accepts instead of blocking indefinitely.
		if tcpListener != nil {
			if err := tcpListener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
				logger.Debug("Failed to set accept deadline: %v", err)
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if isClosedConnError(err) {
				break
			}
			logger.Error("Failed to accept connection: %v", err)
			continue
		}

		if s.slots.TryAcquire(1) {
			go func() {
				defer s.slots.Release(1)
				s.handleConnection(conn)
			}()
		} else {
			s.rejectConnection(conn)
		}
	}

	logger.Info("Accept loop stopped")
	return nil
}

// rejectConnection is the only backpressure mechanism: the connection gets
// a 503 and is closed without ever reaching a handler.
func (s *Server) rejectConnection(conn net.Conn) {
	logger.Warn("Rejecting connection from %s: at maximum capacity", conn.RemoteAddr())
	if _, err := conn.Write(serviceUnavailable); err != nil {
		logger.Debug("Failed to send 503 response: %v", err)
	}
	if err := conn.Close(); err != nil && !isClosedConnError(err) {
		logger.Debug("Error closing rejected connection: %v", err)
	}
}

// Stop makes the accept loop exit. In-flight connections are not cancelled
// and run to completion on their own.
func (s *Server) Stop() error {
	s.shutdown.Store(true)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !isClosedConnError(err) {
			return err
		}
	}
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Collector exposes the metrics collaborator, e.g. for the final summary.
func (s *Server) Collector() stats.Collector {
	return s.collector
}

func loggerEntry(clientAddr string, req *Request, outcome Outcome, status int, bytesSent, bytesReceived int64) logger.Entry {
	return logger.Entry{
		ClientAddr:    clientAddr,
		Host:          req.Host,
		Port:          req.Port,
		Method:        req.Method,
		Outcome:       string(outcome),
		Status:        status,
		BytesSent:     bytesSent,
		BytesReceived: bytesReceived,
	}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
