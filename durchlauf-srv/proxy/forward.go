package proxy

import (
	"context"
	"net"
	"time"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

// forwardResult classifies one plain-HTTP forwarding operation.
type forwardResult struct {
	Outcome       Outcome
	Status        int // 0 when no status line was observed
	BytesSent     int64
	BytesReceived int64
}

// forwardHTTP streams the parsed request to the destination server and the
// response back to the client chunk by chunk, without buffering the full
// response. The raw header bytes are written verbatim to preserve the
// semantics of arbitrary headers.
func (s *Server) forwardHTTP(ctx context.Context, req *Request, clientConn net.Conn) forwardResult {
	res := forwardResult{Outcome: OutcomeAllowed}

	upstream, err := s.dialer.Dial(ctx, req.Host, req.Port)
	if err != nil {
		res.Outcome = classifyDialError(err)
		logger.Debug("Upstream dial to %s:%d failed (%s): %v", req.Host, req.Port, res.Outcome, err)
		return res
	}
	defer func() {
		if closeErr := upstream.Close(); closeErr != nil && !isClosedConnError(closeErr) {
			logger.Debug("Error closing upstream connection: %v", closeErr)
		}
	}()

	if _, err := upstream.Write(req.Raw); err != nil {
		res.Outcome = OutcomeError
		logger.Debug("Failed to write request to %s:%d: %v", req.Host, req.Port, err)
		return res
	}
	res.BytesSent += int64(len(req.Raw))

	if s.cfg.ForwardBody && req.ContentLength > 0 {
		body := ReadRequestBody(clientConn, req.ContentLength, s.cfg.BufferSize)
		if len(body) > 0 {
			if _, err := upstream.Write(body); err != nil {
				res.Outcome = OutcomeError
				logger.Debug("Failed to relay request body to %s:%d: %v", req.Host, req.Port, err)
				return res
			}
			res.BytesSent += int64(len(body))
		}
	}

	pooled, buf := getBuffer(s.cfg.BufferSize)
	defer putBuffer(pooled)

	firstChunk := true
	for {
		if err := upstream.SetReadDeadline(time.Now().Add(s.readTimeout())); err != nil {
			logger.Debug("Failed to set upstream read deadline: %v", err)
		}
		n, err := upstream.Read(buf)
		if n > 0 {
			// The status is extracted from the first chunk only; a status
			// line split across chunk boundaries yields 0.
			if firstChunk {
				res.Status = ExtractResponseStatus(buf[:n])
				firstChunk = false
			}
			if _, werr := clientConn.Write(buf[:n]); werr != nil {
				res.Outcome = OutcomeError
				logger.Debug("Failed to relay response to client: %v", werr)
				return res
			}
			res.BytesReceived += int64(n)
		}
		if err == nil {
			continue
		}

		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			if res.BytesReceived > 0 {
				// A read timeout after data has flowed counts as a
				// completed response; some servers hold the connection
				// open instead of closing after the body.
				if res.Status == 0 {
					res.Status = 200
				}
				return res
			}
			res.Outcome = OutcomeTimeout
			return res
		}
		if isEOF(err) {
			return res
		}
		res.Outcome = OutcomeError
		logger.Debug("Upstream transfer from %s:%d failed: %v", req.Host, req.Port, err)
		return res
	}
}

// readTimeout is the deadline applied to each upstream read. It mirrors the
// connect timeout, matching the single socket timeout the proxy applies to
// the upstream leg.
func (s *Server) readTimeout() time.Duration {
	return time.Duration(s.cfg.ConnectTimeoutSeconds) * time.Second
}
