// Package processortest provides a recording processor.Invoker for tests.
package processortest

import (
	"context"
	"sync"

	"github.com/robert-malhotra/hyp3-srg/internal/processor"
)

// Call is one recorded invocation.
type Call struct {
	Module  processor.Module
	Args    []string
	Env     []string
	WorkDir string
	Request processor.Request
}

// Recorder records every request it receives. Hooks registered per module
// run after recording and may create output files or return an error.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	hooks map[processor.Module]func(workDir string, req processor.Request) error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{hooks: make(map[processor.Module]func(string, processor.Request) error)}
}

// On registers a hook for module, replacing any previous one.
func (r *Recorder) On(module processor.Module, hook func(workDir string, req processor.Request) error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[module] = hook
	return r
}

// Invoke implements processor.Invoker.
func (r *Recorder) Invoke(ctx context.Context, req processor.Request, workDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var env []string
	if er, ok := req.(processor.EnvRequest); ok {
		env = er.Environ()
	}

	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Module:  req.Module(),
		Args:    req.Args(),
		Env:     env,
		WorkDir: workDir,
		Request: req,
	})
	hook := r.hooks[req.Module()]
	r.mu.Unlock()

	if hook != nil {
		return hook(workDir, req)
	}
	return nil
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Modules returns the invoked modules in order.
func (r *Recorder) Modules() []processor.Module {
	calls := r.Calls()
	out := make([]processor.Module, len(calls))
	for i, c := range calls {
		out[i] = c.Module
	}
	return out
}

// CallsTo returns the calls made to module.
func (r *Recorder) CallsTo(module processor.Module) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Module == module {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded calls, keeping hooks.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
