package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AccessLog appends one human-readable line per proxied connection to a log
// file, rotating it with numbered backups once it grows past a size threshold.
// It is safe for concurrent use from all connection handlers.
type AccessLog struct {
	mu            sync.Mutex
	path          string
	maxSize       int64
	rotationCount int
}

// Entry describes one finished connection for the access log.
type Entry struct {
	ClientAddr    string
	Host          string
	Port          int
	Method        string
	Outcome       string
	Status        int // 0 means no HTTP status was observed
	BytesSent     int64
	BytesReceived int64
}

// NewAccessLog creates an access log writing to dir/file. maxSizeKB is the
// rotation threshold in kilobytes; rotationCount is the number of numbered
// backups to keep.
func NewAccessLog(dir, file string, maxSizeKB, rotationCount int) (*AccessLog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return &AccessLog{
		path:          filepath.Join(dir, file),
		maxSize:       int64(maxSizeKB) * 1024,
		rotationCount: rotationCount,
	}, nil
}

// Log formats and appends the entry, rotating first if the file has grown
// past the threshold.
func (a *AccessLog) Log(e Entry) {
	line := a.formatEntry(e)

	a.mu.Lock()
	defer a.mu.Unlock()

	if info, err := os.Stat(a.path); err == nil && info.Size() > a.maxSize {
		if err := a.rotate(); err != nil {
			Error("Failed to rotate access log: %v", err)
		}
	}

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		Error("Failed to open access log %s: %v", a.path, err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			Error("Error closing access log: %v", closeErr)
		}
	}()

	if _, err := f.WriteString(line); err != nil {
		Error("Failed to write access log entry: %v", err)
	}
}

func (a *AccessLog) formatEntry(e Entry) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s → %s:%d | %s | %s",
		timestamp, e.ClientAddr, e.Host, e.Port, e.Method, e.Outcome)
	if e.Status != 0 {
		line += fmt.Sprintf(" | %d", e.Status)
	}
	if e.BytesSent > 0 || e.BytesReceived > 0 {
		line += fmt.Sprintf(" | ↑%dB ↓%dB", e.BytesSent, e.BytesReceived)
	}
	return line + "\n"
}

// rotate shifts proxy.log.1 → proxy.log.2 and so on, dropping the oldest
// backup, then renames the live file to .1. Caller must hold a.mu.
func (a *AccessLog) rotate() error {
	for i := a.rotationCount - 1; i > 0; i-- {
		oldFile := fmt.Sprintf("%s.%d", a.path, i)
		if _, err := os.Stat(oldFile); err != nil {
			continue
		}
		if i == a.rotationCount-1 {
			if err := os.Remove(oldFile); err != nil {
				return err
			}
			continue
		}
		if err := os.Rename(oldFile, fmt.Sprintf("%s.%d", a.path, i+1)); err != nil {
			return err
		}
	}
	if _, err := os.Stat(a.path); err == nil {
		return os.Rename(a.path, a.path+".1")
	}
	return nil
}

// FormatBytes renders a byte count in human-readable form, e.g. "1.50 MB".
func FormatBytes(count int64) string {
	value := float64(count)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", value)
}
