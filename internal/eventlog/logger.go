package eventlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
)

const (
	DefaultTimezone = "America/El_Salvador"
	timestampLayout = "01-02-2006 15:04:05.000000 MST"

	dirPerm  os.FileMode = 0o777
	filePerm os.FileMode = 0o644

	// Existing files are never truncated, even one another process created
	// after the directory check.
	openFlags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
)

// ErrFilesystem wraps every failure to create, open or write the log file.
var ErrFilesystem = errors.New("eventlog: filesystem failure")

// Entry is one line of the event log.
type Entry struct {
	Message     string
	Severity    Severity
	RequesterIP string
	Referer     string
	UserAgent   string
}

// Logger appends entries to plain-text files. A handle is opened and closed
// for every entry; writes through the same Logger are serialized.
type Logger struct {
	mu       sync.Mutex
	location *time.Location
	now      func() time.Time
}

type Option func(*Logger)

func WithLocation(loc *time.Location) Option {
	return func(l *Logger) {
		if loc != nil {
			l.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a Logger stamped in DefaultTimezone unless WithLocation says otherwise.
func New(opts ...Option) *Logger {
	l := &Logger{
		location: LoadLocation(DefaultTimezone),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadLocation resolves a zone name, falling back to UTC when it is unknown.
func LoadLocation(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("Unknown event log timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

// FormatLine renders an entry the way it is stored, including the leading newline.
func FormatLine(ts time.Time, e Entry) string {
	return fmt.Sprintf("\n%s %s [%s]: referer: %s %s %s",
		ts.Format(timestampLayout),
		e.RequesterIP,
		e.Severity,
		e.Referer,
		e.Message,
		e.UserAgent,
	)
}

// Append writes one entry to path. A missing file is created together with
// its parent directories; an existing one is appended to.
func (l *Logger) Append(path string, e Entry) error {
	line := FormatLine(l.now().In(l.location), e)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: stat %s: %w", ErrFilesystem, path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
			return fmt.Errorf("%w: create directory for %s: %w", ErrFilesystem, path, err)
		}
	}

	return writeLine(path, line)
}

func writeLine(path, line string) (err error) {
	f, err := os.OpenFile(path, openFlags, filePerm)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrFilesystem, path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrFilesystem, path, closeErr)
		}
	}()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFilesystem, path, err)
	}
	return nil
}

var defaultLogger = New()

// Append writes an entry through the package default Logger.
func Append(path, message string, severity Severity, requesterIP, referer, userAgent string) error {
	return defaultLogger.Append(path, Entry{
		Message:     message,
		Severity:    severity,
		RequesterIP: requesterIP,
		Referer:     referer,
		UserAgent:   userAgent,
	})
}
