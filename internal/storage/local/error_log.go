package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorLog appends terminal fetch failures to a flat text file, one line per
// failed item. The file survives between runs; each run only appends.
type ErrorLog struct {
	mu   sync.Mutex
	path string
}

// NewErrorLog creates the log's parent directory if needed.
func NewErrorLog(path string) (*ErrorLog, error) {
	if path == "" {
		return nil, fmt.Errorf("error log path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create error log directory: %w", err)
		}
	}
	return &ErrorLog{path: path}, nil
}

// Append writes one failure line. Lines carry a timestamp, the item name, and
// the terminal reason.
func (l *ErrorLog) Append(ctx context.Context, name string, reason string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s: %s\n", time.Now().UTC().Format(time.RFC3339), name, reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append error log: %w", err)
	}
	return nil
}
