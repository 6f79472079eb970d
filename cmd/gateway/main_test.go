package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoadEnvFile_ExistingEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "AIRTABLE_BASE_ID=appFROMFILE\nGW_MAIN_TEST_ONLY=fromfile\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AIRTABLE_BASE_ID", "appFROMENV")
	t.Setenv("GW_MAIN_TEST_ONLY", "")
	os.Unsetenv("GW_MAIN_TEST_ONLY")

	loadEnvFile(path, quietLogger())

	if got := os.Getenv("AIRTABLE_BASE_ID"); got != "appFROMENV" {
		t.Errorf("AIRTABLE_BASE_ID = %q, process env should win", got)
	}
	if got := os.Getenv("GW_MAIN_TEST_ONLY"); got != "fromfile" {
		t.Errorf("GW_MAIN_TEST_ONLY = %q, want value from file", got)
	}
}

func TestLoadEnvFile_MissingIsIgnored(t *testing.T) {
	loadEnvFile(filepath.Join(t.TempDir(), "absent.env"), quietLogger())
	loadEnvFile("", quietLogger())
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "")

	err := run(context.Background(), path, quietLogger(), new(slog.LevelVar))
	if err == nil {
		t.Fatal("expected error for invalid configuration")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level: %v", err)
	}
}

// freePort asks the kernel for an unused TCP port on the loopback interface.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRun_StartsAndStops(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  host: 127.0.0.1
  port: ` + fmt.Sprint(port) + `
  static_dir: ` + dir + `
observability:
  enabled: false
audit:
  file_path: ` + filepath.Join(dir, "audit.jsonl") + `
log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"AIRTABLE_BASE_ID", "AIRTABLE_TOKEN", "AIRTABLE_API_URL", "PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	level := new(slog.LevelVar)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, path, quietLogger(), level) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/api/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("gateway never answered %s: %v", healthURL, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug from config", level.Level())
	}
}
