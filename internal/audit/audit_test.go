package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// bufCloser is an in-memory io.WriteCloser.
type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error { b.closed = true; return nil }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

func TestWriterLogger_WritesJSONLine(t *testing.T) {
	buf := &bufCloser{}
	l := NewWriterLogger(buf, testLogger())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.Log(Entry{
		Timestamp:  ts,
		RequestID:  "req-1",
		RemoteAddr: "10.0.0.1",
		Action:     "create",
		Table:      "Tasks",
		RecordIDs:  []string{"recNEW"},
		Status:     201,
		LatencyMS:  12,
	})

	var got map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("audit line is not JSON: %v (%q)", err, buf.String())
	}
	if got["ts"] != "2026-01-02T03:04:05Z" {
		t.Errorf("ts = %v", got["ts"])
	}
	if got["action"] != "create" || got["table"] != "Tasks" || got["request_id"] != "req-1" {
		t.Errorf("entry = %v", got)
	}
	if got["status"] != float64(201) {
		t.Errorf("status = %v", got["status"])
	}
	if buf.String()[buf.Len()-1] != '\n' {
		t.Error("entry should end with a newline")
	}
}

func TestWriterLogger_DefaultsTimestampAndIDs(t *testing.T) {
	buf := &bufCloser{}
	l := NewWriterLogger(buf, testLogger())
	l.Log(Entry{Action: "delete", Table: "Tasks", Status: 404})

	var got Entry
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
	if got.RecordIDs == nil {
		t.Error("record_ids should be an empty array, not null")
	}
}

func TestWriterLogger_ConcurrentWritesStayLineDelimited(t *testing.T) {
	buf := &bufCloser{}
	l := NewWriterLogger(buf, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Log(Entry{Action: "update", Table: "Tasks", RecordIDs: []string{"rec1"}, Status: 200})
		}()
	}
	wg.Wait()

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 50 {
		t.Errorf("lines = %d, want 50", lines)
	}
}

func TestWriterLogger_WriteFailureDoesNotPanic(t *testing.T) {
	l := NewWriterLogger(failingWriter{}, testLogger())
	l.Log(Entry{Action: "create"})
}

func TestWriterLogger_Close(t *testing.T) {
	buf := &bufCloser{}
	l := NewWriterLogger(buf, testLogger())
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !buf.closed {
		t.Error("underlying writer was not closed")
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	l := New(config.AuditConfig{}, testLogger())
	if _, ok := l.(Noop); !ok {
		t.Fatalf("New with empty path = %T, want Noop", l)
	}
	l.Log(Entry{Action: "create"})
	if err := l.Close(); err != nil {
		t.Errorf("Noop.Close: %v", err)
	}
}

func TestNew_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l := New(config.AuditConfig{FilePath: path, MaxSizeMB: 1, MaxBackups: 1}, testLogger())
	l.Log(Entry{Action: "create", Table: "Tasks", Status: 201})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit file: %v", err)
	}
	var e Entry
	if err := json.Unmarshal(bytes.TrimSpace(data), &e); err != nil {
		t.Fatalf("audit file content is not JSON: %v", err)
	}
	if e.Action != "create" || e.Status != 201 {
		t.Errorf("entry = %+v", e)
	}
}
