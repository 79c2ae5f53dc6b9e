// Package tmplctx implements TemplateContext: named auxiliary data loaded
// from a file, HTTP endpoint, or object store bucket and merged into the
// render context alongside instances and discovery_request.
package tmplctx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"gopkg.in/yaml.v3"
)

// Format selects how a loaded payload is deserialized.
type Format string

const (
	FormatJSON      Format = "json"
	FormatYAML      Format = "yaml"
	FormatPlaintext Format = "plaintext"
)

// DataSourceKind identifies where a Context's bytes come from.
type DataSourceKind string

const (
	DataSourceFile        DataSourceKind = "file"
	DataSourceHttp        DataSourceKind = "http"
	DataSourceObjectStore DataSourceKind = "object_store"
)

// DataSource is a tagged-union configuration entry.
type DataSource struct {
	Type DataSourceKind `yaml:"type"`

	// File
	Path string `yaml:"path,omitempty"`

	// Http
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`

	// ObjectStore
	Bucket string `yaml:"bucket,omitempty"`
	Key    string `yaml:"key,omitempty"`
	Region string `yaml:"region,omitempty"`
}

// Context is one named template_context entry.
type Context struct {
	DeserializeAs Format     `yaml:"deserialize_as"`
	DataSource    DataSource `yaml:"data_source"`
}

// Parsed is the value a Context.Load yields: plaintext is kept as
// pre-escaped safe text, JSON/YAML retain full nested structure.
type Parsed struct {
	Text       *string
	Structured any
}

// Value returns the Go value to merge into the render context: the raw
// string for Text, or the decoded structure otherwise.
func (p Parsed) Value() any {
	if p.Text != nil {
		return *p.Text
	}
	return p.Structured
}

// Load fetches and deserializes this context entry.
func (c Context) Load(ctx context.Context, client *http.Client) (Parsed, error) {
	data, err := c.DataSource.fetch(ctx, client)
	if err != nil {
		return Parsed{}, err
	}

	switch c.DeserializeAs {
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return Parsed{}, fmt.Errorf("parsing context as yaml: %w", err)
		}
		return Parsed{Structured: v}, nil

	case FormatPlaintext:
		text := string(data)
		return Parsed{Text: &text}, nil

	case FormatJSON, "":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return Parsed{}, fmt.Errorf("parsing context as json: %w", err)
		}
		return Parsed{Structured: v}, nil

	default:
		return Parsed{}, fmt.Errorf("unknown deserialize_as %q", c.DeserializeAs)
	}
}

func (d DataSource) fetch(ctx context.Context, client *http.Client) ([]byte, error) {
	switch d.Type {
	case DataSourceFile:
		b, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, fmt.Errorf("reading context file %q: %w", d.Path, err)
		}
		return b, nil

	case DataSourceHttp:
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %q: %w", d.URL, err)
		}
		for k, v := range d.Headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching context %q: %w", d.URL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fetching context %q: unexpected status %s", d.URL, resp.Status)
		}
		return io.ReadAll(resp.Body)

	case DataSourceObjectStore:
		sess, err := session.NewSession(&aws.Config{Region: aws.String(d.Region)})
		if err != nil {
			return nil, fmt.Errorf("creating object store session: %w", err)
		}
		out, err := s3.New(sess).GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.Bucket),
			Key:    aws.String(d.Key),
		})
		if err != nil {
			return nil, fmt.Errorf("fetching object %s/%s: %w", d.Bucket, d.Key, err)
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)

	default:
		return nil, fmt.Errorf("unknown data_source type %q", d.Type)
	}
}
