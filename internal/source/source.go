// Package source implements the four Source variants that feed the
// instance bucketer: a literal inline payload, embedded/external scripts,
// a remote HTTP endpoint, and a local file. Each driver's Fetch returns
// raw bytes and must not retain any per-call state — a failure on one
// source must never poison the next tick's attempt.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sovereign/controlplane/internal/script"
)

// Kind identifies which Source variant a configuration entry is.
type Kind string

const (
	KindInline         Kind = "inline"
	KindEmbeddedScript Kind = "embedded_script"
	KindScriptFile     Kind = "script_file"
	KindHttp           Kind = "http"
	KindFile           Kind = "file"
)

// Source is a tagged-union configuration entry; only the fields relevant
// to Type are populated.
type Source struct {
	Type Kind `yaml:"type"`

	// Inline
	Data any `yaml:"data,omitempty"`

	// EmbeddedScript
	Code string `yaml:"code,omitempty"`

	// ScriptFile, File
	Path string `yaml:"path,omitempty"`

	// Http
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Fetch returns the raw payload bytes for this source. scripts may be nil;
// it is only used by the EmbeddedScript/ScriptFile variants, which return
// an error when it is nil, matching the "optional capability" design note.
func (s Source) Fetch(ctx context.Context, scripts *script.Runtime, client *http.Client) ([]byte, error) {
	switch s.Type {
	case KindInline:
		b, err := json.Marshal(s.Data)
		if err != nil {
			return nil, fmt.Errorf("serializing inline source: %w", err)
		}
		return b, nil

	case KindEmbeddedScript:
		return runScript(scripts, s.Code)

	case KindScriptFile:
		code, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("reading script file %q: %w", s.Path, err)
		}
		return runScript(scripts, string(code))

	case KindHttp:
		return fetchHTTP(ctx, client, s.URL, s.Headers)

	case KindFile:
		b, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("reading source file %q: %w", s.Path, err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown source type %q", s.Type)
	}
}

func runScript(scripts *script.Runtime, code string) ([]byte, error) {
	if scripts == nil {
		return nil, fmt.Errorf("source requires the embedded scripting runtime, which is not configured")
	}
	out, err := scripts.RunSource(code)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func fetchHTTP(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %q: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetching %q: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body from %q: %w", url, err)
	}
	return body, nil
}
