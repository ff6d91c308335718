package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	// MaxSizeMB is the size at which the file is rotated. 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept next to the live one.
	MaxBackups int
}

// DefaultRotationConfig returns the rotation settings used when none are
// configured.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	}
}

// RotatingWriter is an io.WriteCloser appending to a file that is rotated
// once it would grow past the configured size. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	path       string
	maxBytes   int64
	maxBackups int

	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) path for appending, creating its
// parent directory if needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:       path,
		maxBytes:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open the live file and record its current size. The caller must hold rw.mu.
func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the limit.
// A single write larger than the limit still lands in one file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.maxBytes > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// rotate closes the live file, shifts backups and reopens an empty file.
// The caller must hold rw.mu.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	rw.file = nil

	if rw.maxBackups <= 0 {
		if err := os.Remove(rw.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove log file: %w", err)
		}
	} else {
		_ = os.Remove(rw.backupPath(rw.maxBackups))
		for i := rw.maxBackups - 1; i >= 1; i-- {
			src := rw.backupPath(i)
			if _, err := os.Stat(src); err == nil {
				if err := os.Rename(src, rw.backupPath(i+1)); err != nil {
					return fmt.Errorf("failed to shift backup %s: %w", src, err)
				}
			}
		}
		if err := os.Rename(rw.path, rw.backupPath(1)); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	return rw.open()
}

func (rw *RotatingWriter) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// Path returns the path of the live log file.
func (rw *RotatingWriter) Path() string {
	return rw.path
}

// Sync flushes the live file to disk.
func (rw *RotatingWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close closes the live file. Further writes fail with os.ErrClosed.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}
