package sampling

import (
	"fmt"
	"os"
	"sync"
)

// ErrorLog is the append-only text file recording solver failures. Each entry
// is two lines (instance/seed header, error text) written in one call while
// holding the lock, so concurrent workers never interleave mid-entry.
type ErrorLog struct {
	mu   sync.Mutex
	path string
}

// NewErrorLog returns a log appending to path. The file is created on first use.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

// Path returns the log file path.
func (l *ErrorLog) Path() string {
	return l.path
}

// Record appends one failure entry.
func (l *ErrorLog) Record(instance string, seed uint32, cause error) error {
	entry := fmt.Sprintf("Error occurred solving %s with seed %d\n%v\n", instance, seed, cause)

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening error log: %w", err)
	}
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("appending to error log: %w", err)
	}
	return f.Close()
}
