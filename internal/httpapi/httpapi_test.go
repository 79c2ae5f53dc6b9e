package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sovereign/controlplane/internal/bucket"
	"github.com/sovereign/controlplane/internal/render"
	"github.com/sovereign/controlplane/internal/script"
	"github.com/sovereign/controlplane/internal/stream"
	"github.com/sovereign/controlplane/internal/tmplctx"
	"github.com/sovereign/controlplane/internal/xdstemplate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "clusters.tmpl")
	if err := os.WriteFile(path, []byte(`[{"a":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := xdstemplate.NewRegistry()
	registry.Register(xdstemplate.Template{EnvoyVersion: "default", ResourceType: "clusters", Path: path})

	pipeline := render.NewPipeline(
		registry,
		stream.NewCell([]bucket.Package{}),
		stream.NewCell(map[string]tmplctx.Parsed{}),
		script.New(),
		testLogger(),
	)

	handler := NewHandler(pipeline, testLogger())
	return httptest.NewServer(handler.Routes())
}

func TestDiscover_MalformedBodyReturns400(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v3/discovery:clusters", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDiscover_UnknownSegmentPrefixIs404(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v3/bogus:clusters", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDiscover_FullRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"node": map[string]any{
			"cluster":       "X",
			"build_version": "1.25.4",
		},
	})
	resp, err := http.Post(srv.URL+"/v3/discovery:clusters", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var envelope struct {
		VersionInfo string          `json:"version_info"`
		Resources   json.RawMessage `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.VersionInfo == "" {
		t.Error("expected a non-empty version_info")
	}
}
