// Package render implements the per-request render pipeline: resolve a
// template, filter the instances snapshot for the request's cluster,
// compose a render context, render, content-hash the result, and format
// the discovery response — the engine behind every POST
// /{apiVersion}/discovery:{resourceType} call.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/sovereign/controlplane/internal/bucket"
	"github.com/sovereign/controlplane/internal/script"
	"github.com/sovereign/controlplane/internal/stream"
	"github.com/sovereign/controlplane/internal/tmplctx"
	"github.com/sovereign/controlplane/internal/xdstemplate"
)

// Result is the fully-formed outcome of handling one discovery request.
type Result struct {
	Status      int
	Body        []byte
	ContentType string
}

// Pipeline wires the template registry and the two latest-value snapshots
// together into request handling. It holds no per-request state.
type Pipeline struct {
	registry  *xdstemplate.Registry
	instances *stream.Cell[[]bucket.Package]
	context   *stream.Cell[map[string]tmplctx.Parsed]
	scripts   *script.Runtime
	log       *slog.Logger
}

// NewPipeline wires a Pipeline from its collaborators. context may be nil,
// meaning no template_context section was configured.
func NewPipeline(
	registry *xdstemplate.Registry,
	instances *stream.Cell[[]bucket.Package],
	ctx *stream.Cell[map[string]tmplctx.Parsed],
	scripts *script.Runtime,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{registry: registry, instances: instances, context: ctx, scripts: scripts, log: log}
}

// Handle runs one request through the full state machine: Received ->
// Resolved -> Filtered -> Rendered -> {Unchanged-304 | Serialized-200 |
// Failed-5xx}.
func (p *Pipeline) Handle(ctx context.Context, apiVersion, resourceType string, req DiscoveryRequest) Result {
	envoyVersion, ok := req.EnvoyVersion()
	if !ok {
		return Result{Status: 400, Body: []byte("request is missing node.build_version and node.user_agent_build_version"), ContentType: "text/plain; charset=utf-8"}
	}

	resolveStart := time.Now()
	tmpl, ok := p.registry.Resolve(envoyVersion, resourceType)
	p.debugf("resolve", resolveStart, "version", envoyVersion, "resource_type", resourceType, "hit", ok)
	if !ok {
		body := fmt.Sprintf(
			"no template registered for %s/%s. known templates: %v",
			envoyVersion, resourceType, p.registry.Names(),
		)
		return Result{Status: 404, Body: []byte(body), ContentType: "text/plain; charset=utf-8"}
	}

	filterStart := time.Now()
	var pkgs []bucket.Package
	if p.instances != nil {
		pkgs = p.instances.Load()
	}
	instances := bucket.Filter(pkgs, req.Node.Cluster)
	p.debugf("filter", filterStart, "cluster", req.Node.Cluster, "instances", len(instances))

	renderCtx := p.composeContext(instances, req)

	src, err := tmpl.Source()
	if err != nil {
		return Result{Status: 500, Body: []byte(fmt.Sprintf("reading template %q: %s", tmpl.Path, err)), ContentType: "text/plain; charset=utf-8"}
	}

	renderStart := time.Now()
	var rendered string
	if tmpl.CallScript {
		rendered, err = p.scripts.RunTemplate(src, renderCtx)
	} else {
		rendered, err = renderText(src, renderCtx)
	}
	p.debugf("render", renderStart, "template", tmpl.Name(), "call_script", tmpl.CallScript)
	if err != nil {
		return Result{Status: 500, Body: []byte(fmt.Sprintf("rendering %s: %s", tmpl.Name(), err)), ContentType: "text/plain; charset=utf-8"}
	}

	hashStart := time.Now()
	versionInfo := strconv.FormatUint(xxhash.Sum64String(rendered), 10)
	p.debugf("hash", hashStart, "version_info", versionInfo)

	if req.VersionInfo != "" && req.VersionInfo == versionInfo {
		return Result{Status: 304}
	}

	resources, err := embedResources(tmpl.DeserializeAs, rendered, p.log)
	if err != nil {
		return Result{Status: 500, Body: []byte(err.Error()), ContentType: "text/plain; charset=utf-8"}
	}

	envelope := struct {
		VersionInfo string          `json:"version_info"`
		Resources   json.RawMessage `json:"resources"`
	}{VersionInfo: versionInfo, Resources: resources}

	body, err := json.Marshal(envelope)
	if err != nil {
		return Result{Status: 500, Body: []byte(fmt.Sprintf("encoding response: %s", err)), ContentType: "text/plain; charset=utf-8"}
	}

	return Result{Status: 200, Body: body, ContentType: "application/json"}
}

// debugf logs a stage timing at Debug level, matching the original's
// measure! macro around each render stage. Silent unless the logger's
// level is configured down to Debug.
func (p *Pipeline) debugf(stage string, start time.Time, args ...any) {
	if p.log == nil {
		return
	}
	p.log.Debug("render stage", append([]any{"stage", stage, "elapsed", time.Since(start)}, args...)...)
}

// composeContext merges instances, discovery_request, and every
// template_context entry at the top level. Context entries never shadow
// instances or discovery_request.
func (p *Pipeline) composeContext(instances []bucket.Instance, req DiscoveryRequest) map[string]any {
	renderCtx := make(map[string]any)

	if p.context != nil {
		for name, parsed := range p.context.Load() {
			if name == "instances" || name == "discovery_request" {
				continue
			}
			renderCtx[name] = parsed.Value()
		}
	}

	renderCtx["instances"] = instances
	renderCtx["discovery_request"] = req
	return renderCtx
}

func renderText(src string, renderCtx map[string]any) (string, error) {
	tmpl, err := template.New("xds").Funcs(sprig.TxtFuncMap()).Parse(src)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, renderCtx); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}
	return buf.String(), nil
}

// embedResources turns the rendered template body into the JSON value that
// goes under "resources" in the envelope.
func embedResources(deserializeAs xdstemplate.DeserializeAs, rendered string, log *slog.Logger) (json.RawMessage, error) {
	if deserializeAs != xdstemplate.DeserializeYAML {
		// JSON and Plaintext are embedded verbatim; the template author is
		// responsible for producing valid JSON.
		return json.RawMessage(rendered), nil
	}

	var v any
	if err := yaml.Unmarshal([]byte(rendered), &v); err != nil {
		logYAMLWindow(log, err, rendered)
		return nil, fmt.Errorf("parsing rendered yaml: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-encoding parsed yaml as json: %w", err)
	}
	return b, nil
}
