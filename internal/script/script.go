// Package script wraps go.starlark.net as the embedded scripting runtime
// used by EmbeddedScript/ScriptFile sources and call_script templates.
//
// The runtime is an optional collaborator: a Runtime is always constructed,
// but with no call_script template and no embedded_script/script_file
// source configured, no code is ever run through it. A Starlark thread is not safe for concurrent
// use, so Runtime serializes all calls behind a mutex — per the core's
// concurrency note, handlers must stay correct (just slower) under that
// lock.
package script

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.starlark.net/starlark"
)

// Runtime executes user-supplied Starlark code on demand.
type Runtime struct {
	mu sync.Mutex
}

// New returns a ready-to-use Runtime.
func New() *Runtime {
	return &Runtime{}
}

// RunSource executes code's main() entry point with no arguments and
// expects it to return a string (typically a JSON array of instances).
func (r *Runtime) RunSource(code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	main, thread, err := r.load(code)
	if err != nil {
		return "", err
	}
	result, err := starlark.Call(thread, main, starlark.Tuple{}, nil)
	if err != nil {
		return "", fmt.Errorf("running script main(): %w", err)
	}
	return asString(result)
}

// RunTemplate executes code's main() entry point, passing renderCtx
// serialized to JSON as the sole positional argument, and expects main()
// to return the rendered body as a string.
func (r *Runtime) RunTemplate(code string, renderCtx map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	main, thread, err := r.load(code)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(renderCtx)
	if err != nil {
		return "", fmt.Errorf("marshaling render context: %w", err)
	}

	result, err := starlark.Call(thread, main, starlark.Tuple{starlark.String(payload)}, nil)
	if err != nil {
		return "", fmt.Errorf("running template main(): %w", err)
	}
	return asString(result)
}

func (r *Runtime) load(code string) (*starlark.Function, *starlark.Thread, error) {
	thread := &starlark.Thread{Name: "sovereign-script"}
	globals, err := starlark.ExecFile(thread, "<embedded>", code, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing script: %w", err)
	}
	main, ok := globals["main"].(*starlark.Function)
	if !ok {
		return nil, nil, fmt.Errorf("script has no main() function")
	}
	return main, thread, nil
}

func asString(v starlark.Value) (string, error) {
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("main() must return a string, got %s", v.Type())
	}
	return s, nil
}
