package proxy

import (
	"net"
	"sync"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
	"github.com/codefionn/durchlauf/durchlauf-srv/stats"
)

// closeWriter is satisfied by connections that support TCP half-close.
type closeWriter interface {
	CloseWrite() error
}

// transferStats tracks the byte counts of one transfer. The two directions
// of a tunnel update it concurrently, so the counters are atomic.
type transferStats struct {
	bytesSent     stats.AtomicInt64Counter
	bytesReceived stats.AtomicInt64Counter
}

// tunnel relays raw bytes bidirectionally between client and upstream until
// both directions have terminated, and returns the byte counts
// (client→upstream, upstream→client). No interpretation of the relayed
// bytes occurs.
//
// Each direction ends on its own EOF or I/O error; a half-closing tunnel is
// not a proxy failure, so errors are logged, never propagated. There is no
// cross-goroutine cancellation: when one side closes, CloseWrite (or the
// peer's reset) makes the other side's next read terminate.
func tunnel(clientConn, upstreamConn net.Conn, bufferSize int) (bytesSent, bytesReceived int64) {
	var stats transferStats
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		relay(clientConn, upstreamConn, bufferSize, &stats.bytesSent)
	}()

	go func() {
		defer wg.Done()
		relay(upstreamConn, clientConn, bufferSize, &stats.bytesReceived)
	}()

	wg.Wait()
	return stats.bytesSent.Load(), stats.bytesReceived.Load()
}

// relay copies chunks from src to dst, adding each chunk's size to counter,
// until src reaches EOF or either side errors.
func relay(src, dst net.Conn, bufferSize int, counter *stats.AtomicInt64Counter) {
	pooled, buf := getBuffer(bufferSize)
	defer putBuffer(pooled)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				logger.Debug("Tunnel relay write terminated: %v", werr)
				break
			}
			counter.Add(int64(n))
		}
		if err != nil {
			if !isClosedConnError(err) {
				logger.Debug("Tunnel relay read terminated: %v", err)
			}
			break
		}
	}

	// Signal the peer that this direction is done; its next read returns
	// EOF and the other relay terminates on its own.
	if cw, ok := dst.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil && !isClosedConnError(err) {
			logger.Debug("Tunnel CloseWrite failed: %v", err)
		}
	}
}
