// Package audit records every record mutation handled by the gateway as one
// JSON line in an append-only, size-rotated file.
//
// Entries are written after the upstream call returns, whether it succeeded
// or not. A failed write is logged and counted; it never changes the HTTP
// response.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/config"
	"github.com/RaikaSurendra/airtable-gateway/internal/observability"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single audit line.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	RequestID  string    `json:"request_id"`
	RemoteAddr string    `json:"remote_addr"`
	Action     string    `json:"action"` // create, update, delete
	Table      string    `json:"table"`
	RecordIDs  []string  `json:"record_ids"`
	Status     int       `json:"status"`
	LatencyMS  int64     `json:"latency_ms"`
}

// Logger appends entries to the audit trail.
type Logger interface {
	Log(entry Entry)
	Close() error
}

// New returns a file-backed Logger, or a no-op Logger when cfg.FilePath is
// empty.
func New(cfg config.AuditConfig, logger *slog.Logger) Logger {
	if cfg.FilePath == "" {
		return Noop{}
	}
	w := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return NewWriterLogger(w, logger)
}

// WriterLogger writes JSON lines to an io.WriteCloser.
type WriterLogger struct {
	mu     sync.Mutex
	w      io.WriteCloser
	logger *slog.Logger
}

// NewWriterLogger wraps w. The caller must call Close when done.
func NewWriterLogger(w io.WriteCloser, logger *slog.Logger) *WriterLogger {
	return &WriterLogger{
		w:      w,
		logger: logger.With("component", "audit"),
	}
}

// Log appends one entry. A zero Timestamp is set to the current UTC time.
func (l *WriterLogger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.RecordIDs == nil {
		entry.RecordIDs = []string{}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.fail(fmt.Errorf("marshaling audit entry: %w", err), entry)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		l.fail(fmt.Errorf("writing audit entry: %w", err), entry)
	}
}

// Close closes the underlying writer.
func (l *WriterLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

func (l *WriterLogger) fail(err error, entry Entry) {
	observability.Metrics.AuditErrorsTotal.Inc()
	l.logger.Error("audit write failed",
		"error", err,
		"request_id", entry.RequestID,
		"action", entry.Action,
	)
}

// Noop discards every entry.
type Noop struct{}

func (Noop) Log(Entry)    {}
func (Noop) Close() error { return nil }
