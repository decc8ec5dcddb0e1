package proxy

import (
	"sync"
)

const (
	// DefaultBufferSize is the default size for pooled relay buffers (32KB)
	DefaultBufferSize = 32 * 1024
)

// bufferPool is a global pool of byte slices used for relaying data between
// connections. This reduces GC pressure by reusing buffers.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufferSize)
		return &buf
	},
}

// getBuffer retrieves a relay buffer of at least size bytes from the pool,
// truncated to size. The caller must return it using putBuffer when done.
func getBuffer(size int) (*[]byte, []byte) {
	pooled := bufferPool.Get().(*[]byte)
	if size <= 0 || size > len(*pooled) {
		size = len(*pooled)
	}
	return pooled, (*pooled)[:size]
}

// putBuffer returns a buffer to the pool for reuse.
func putBuffer(buf *[]byte) {
	if buf != nil {
		bufferPool.Put(buf)
	}
}
