package gateway

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestStaticFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "index.html"), "<h1>home</h1>")
	mustWrite(t, filepath.Join(root, "css", "site.css"), "body{}")
	mustWrite(t, filepath.Join(root, ".env"), "AIRTABLE_TOKEN=secret")
	mustWrite(t, filepath.Join(root, ".git", "config"), "[core]")
	mustWrite(t, filepath.Join(root, "docs", "readme.txt"), "no index here")

	cfg := testConfig("http://127.0.0.1:1", root)
	srv := NewServer(cfg, nil, testLogger())

	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"root index", http.MethodGet, "/", http.StatusOK},
		{"nested file", http.MethodGet, "/css/site.css", http.StatusOK},
		{"head", http.MethodHead, "/css/site.css", http.StatusOK},
		{"dotfile", http.MethodGet, "/.env", http.StatusNotFound},
		{"dot directory", http.MethodGet, "/.git/config", http.StatusNotFound},
		{"traversal", http.MethodGet, "/../../etc/passwd", http.StatusNotFound},
		{"missing", http.MethodGet, "/nope.html", http.StatusNotFound},
		{"directory without index", http.MethodGet, "/docs/", http.StatusNotFound},
		{"post", http.MethodPost, "/index.html", http.StatusNotFound},
		{"unknown api path", http.MethodGet, "/api/unknown", http.StatusNotFound},
		{"wrong method on api route", http.MethodPut, "/api/table/Tasks/records/rec1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.target, rec.Code, tt.want)
			}
		})
	}
}

func TestAPIRoutesWinOverStaticFiles(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	mustWrite(t, filepath.Join(h.srv.cfg.StaticDir, "api", "health"), "static shadow")

	rec := h.do(http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() == "static shadow" {
		t.Errorf("GET /api/health = %d %q, want the health handler", rec.Code, rec.Body.String())
	}
}

func TestHasDotSegment(t *testing.T) {
	for p, want := range map[string]bool{
		"/index.html":       false,
		"/.env":             true,
		"/a/.hidden/b":      true,
		"/a/b.c":            false,
		"/":                 false,
		"/assets/app.v1.js": false,
	} {
		if got := hasDotSegment(p); got != want {
			t.Errorf("hasDotSegment(%q) = %v, want %v", p, got, want)
		}
	}
}
