package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
	"github.com/codefionn/durchlauf/durchlauf-srv/stats"
)

// handleConnection runs the per-connection state machine:
// receive → parse → filter → dispatch (tunnel or forward) → record → close.
// Every fault is contained here; nothing escapes to the acceptor.
func (s *Server) handleConnection(conn net.Conn) {
	clientAddr := conn.RemoteAddr().String()

	// The configured timeout applies per client read, so an active
	// long-lived tunnel or transfer is never cut off by an absolute
	// deadline and a 408 can still be written after a timed-out read.
	client := newIdleConn(conn, time.Duration(s.cfg.TimeoutSeconds)*time.Second)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic handling connection from %s: %v", clientAddr, r)
			sendErrorResponse(client, 500, s.internalErrorMessage(r), s.cfg.DetailedErrors)
		}
		// The client connection is closed on every exit path, even if the
		// close itself fails.
		if err := client.Close(); err != nil && !isClosedConnError(err) {
			logger.Debug("Error closing client connection: %v", err)
		}
	}()

	raw, err := ReadRequestHeaders(client, s.cfg.BufferSize, s.cfg.MaxHeaderBytes)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			sendErrorResponse(client, 408, "Client request timed out", s.cfg.DetailedErrors)
			return
		}
		// Oversized headers fail the parse.
		sendErrorResponse(client, 400, err.Error(), s.cfg.DetailedErrors)
		return
	}
	if len(raw) == 0 {
		// Peer disconnected before sending anything; not an error.
		return
	}

	req, err := ParseRequest(raw)
	if err != nil {
		logger.Debug("Rejecting unparsable request from %s: %v", clientAddr, err)
		sendErrorResponse(client, 400, "Invalid HTTP request", s.cfg.DetailedErrors)
		return
	}

	s.collector.IncrementTotal()

	if s.blocklist.IsBlocked(req.Host) {
		sendErrorResponse(client, 403, "Access to "+req.Host+" is blocked by proxy policy", s.cfg.DetailedErrors)
		s.collector.IncrementBlocked()
		s.recordOutcome(clientAddr, req, OutcomeBlocked, 403, 0, 0, 0)
		return
	}

	s.collector.IncrementAllowed()

	if req.Method == "CONNECT" {
		if !s.cfg.EnableHTTPS {
			sendErrorResponse(client, 501, "HTTPS tunneling is disabled", s.cfg.DetailedErrors)
			s.recordOutcome(clientAddr, req, OutcomeError, 501, 0, 0, 0)
			return
		}
		s.handleConnect(client, clientAddr, req)
		return
	}

	s.handleHTTP(client, clientAddr, req)
}

// internalErrorMessage is the 500 body message; the specific failure is
// only exposed when detailed errors are enabled.
func (s *Server) internalErrorMessage(r any) string {
	if s.cfg.DetailedErrors {
		return fmt.Sprintf("Proxy error: %v", r)
	}
	return "An error occurred"
}

// handleConnect establishes the CONNECT tunnel. By the time the tunnel is
// up the client believes it has a live TCP connection, so transfer failures
// are logged, never surfaced as HTTP responses.
func (s *Server) handleConnect(conn net.Conn, clientAddr string, req *Request) {
	start := time.Now()

	upstream, err := s.dialer.Dial(context.Background(), req.Host, req.Port)
	if err != nil {
		outcome := classifyDialError(err)
		logger.Debug("CONNECT dial to %s:%d failed (%s): %v", req.Host, req.Port, outcome, err)
		s.recordOutcome(clientAddr, req, outcome, 0, 0, 0, time.Since(start))
		return
	}
	defer func() {
		if closeErr := upstream.Close(); closeErr != nil && !isClosedConnError(closeErr) {
			logger.Debug("Error closing upstream connection: %v", closeErr)
		}
	}()

	if _, err := conn.Write(connectEstablished); err != nil {
		logger.Debug("Failed to send 200 Connection Established: %v", err)
		s.recordOutcome(clientAddr, req, OutcomeError, 0, 0, 0, time.Since(start))
		return
	}

	bytesSent, bytesReceived := tunnel(conn, upstream, s.cfg.BufferSize)

	s.collector.AddBytesSent(bytesSent)
	s.collector.AddBytesReceived(bytesReceived)
	s.recordOutcome(clientAddr, req, OutcomeAllowed, 200, bytesSent, bytesReceived, time.Since(start))
}

// handleHTTP forwards a plain HTTP request and streams the response back.
func (s *Server) handleHTTP(conn net.Conn, clientAddr string, req *Request) {
	start := time.Now()

	res := s.forwardHTTP(context.Background(), req, conn)

	s.collector.AddBytesSent(res.BytesSent)
	s.collector.AddBytesReceived(res.BytesReceived)
	s.recordOutcome(clientAddr, req, res.Outcome, res.Status, res.BytesSent, res.BytesReceived, time.Since(start))
}

// recordOutcome hands exactly one ConnectionOutcome to the logging and
// metrics collaborators.
func (s *Server) recordOutcome(clientAddr string, req *Request, outcome Outcome, status int,
	bytesSent, bytesReceived int64, duration time.Duration) {
	if s.accessLog != nil {
		s.accessLog.Log(loggerEntry(clientAddr, req, outcome, status, bytesSent, bytesReceived))
	}
	if err := s.collector.RecordConnection(context.Background(), stats.ConnectionRecord{
		ClientAddr:    clientAddr,
		TargetHost:    req.Host,
		TargetPort:    req.Port,
		Method:        req.Method,
		Outcome:       string(outcome),
		Status:        status,
		BytesSent:     bytesSent,
		BytesReceived: bytesReceived,
		Duration:      duration,
	}); err != nil {
		logger.Error("Failed to record connection outcome: %v", err)
	}
}
