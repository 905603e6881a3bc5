// Package runner turns a logical tool invocation into either a native OS
// process pipeline or a containerized execution, transparently. One Runner
// is shared by many concurrent workflow tasks; calls share no mutable state
// except the documented ambient-environment critical section.
package runner

import (
	"context"
	"fmt"
	"io"
	"sync"

	errs "vgrun/internal/errors"
	"vgrun/pkg/runtime"
)

// Runner dispatches execution requests to the native, Docker or Singularity
// path based on the tool-image registry. Safe for concurrent use.
type Runner struct {
	tools          *runtime.ToolImageMap
	realtimeStderr bool
	singularityBin string

	apiOnce sync.Once
	api     dockerAPI
	apiErr  error

	// test seams
	newRelay func(path string, sink io.Writer) *fifoRelay
}

// Option configures a Runner.
type Option func(*Runner)

// WithRealtimeStderr mirrors every call's standard error to the diagnostic
// log line by line while the call runs, unless the caller supplied an
// explicit error sink.
func WithRealtimeStderr(enabled bool) Option {
	return func(r *Runner) { r.realtimeStderr = enabled }
}

// WithDockerClient substitutes the Docker daemon client; used by tests.
func WithDockerClient(api dockerAPI) Option {
	return func(r *Runner) {
		r.apiOnce.Do(func() {})
		r.api = api
	}
}

// WithSingularityCommand overrides the singularity binary name.
func WithSingularityCommand(bin string) Option {
	return func(r *Runner) { r.singularityBin = bin }
}

// New builds a Runner over a read-only tool-image registry.
func New(tools *runtime.ToolImageMap, opts ...Option) *Runner {
	r := &Runner{
		tools:          tools,
		singularityBin: "singularity",
		newRelay:       newFifoRelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EngineFor exposes how a call for the given tool would be run.
func (r *Runner) EngineFor(tool string) runtime.EngineKind {
	return r.tools.EngineFor(tool)
}

// Call runs one pipeline to completion and returns its result, or a
// definitive failure. The request's capture flag and output sink are
// mutually exclusive.
func (r *Runner) Call(ctx context.Context, req *runtime.Request) (*runtime.Result, error) {
	if err := req.Pipeline.Validate(); err != nil {
		return nil, errs.NewVGRunError(errs.ErrRequestInvalid,
			"Invalid execution request", err.Error(),
			"Supply at least one non-empty command", err)
	}
	if req.CheckOutput && req.OutFile != nil {
		err := fmt.Errorf("capture-output and an output sink are mutually exclusive")
		return nil, errs.NewVGRunError(errs.ErrRequestInvalid,
			"Invalid execution request", err.Error(),
			"Request either captured output or a sink, not both", err)
	}

	tool := req.Tool()

	errFile := req.ErrFile
	if r.realtimeStderr && errFile == nil {
		relay := startStderrRelay()
		defer relay.Close()
		errFile = relay
	}

	switch r.tools.EngineFor(tool) {
	case runtime.EngineDocker:
		imageRef, _ := r.tools.ImageFor(tool)
		return r.callWithDocker(ctx, imageRef, req.Pipeline, req.WorkDir, req.OutFile, errFile, req.CheckOutput)
	case runtime.EngineSingularity:
		imageRef, _ := r.tools.ImageFor(tool)
		return r.callWithSingularity(ctx, imageRef, req.Pipeline, req.WorkDir, req.OutFile, errFile, req.CheckOutput)
	default:
		return r.callDirectly(ctx, req.Pipeline, req.WorkDir, req.OutFile, errFile, req.CheckOutput)
	}
}

// dockerAPI lazily connects to the daemon on first containerized call, so a
// Runner configured for native execution never needs Docker present.
func (r *Runner) dockerAPI(ctx context.Context) (dockerAPI, error) {
	r.apiOnce.Do(func() {
		r.api, r.apiErr = newDockerClient(ctx)
	})
	return r.api, r.apiErr
}
