package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	errs "vgrun/internal/errors"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

func TestCallRejectsCaptureWithSink(t *testing.T) {
	r := newNativeRunner()
	_, err := r.Call(context.Background(), &runtime.Request{
		Pipeline:    pipeline.Single("echo", "x"),
		WorkDir:     t.TempDir(),
		OutFile:     &bytes.Buffer{},
		CheckOutput: true,
	})
	if !errors.Is(err, errs.ErrRequestInvalid) {
		t.Errorf("got %v, want a request-invalid error", err)
	}
}

func TestCallRejectsEmptyPipeline(t *testing.T) {
	r := newNativeRunner()
	_, err := r.Call(context.Background(), &runtime.Request{WorkDir: t.TempDir()})
	if !errors.Is(err, errs.ErrRequestInvalid) {
		t.Errorf("got %v, want a request-invalid error", err)
	}
}

func TestUnmappedToolRunsNatively(t *testing.T) {
	// The registry names an engine but this tool has no image, so the
	// whole call takes the direct path.
	tools := runtime.NewToolImageMap(map[string]string{"vg": testImage}, runtime.EngineDocker)
	r := New(tools)

	res, err := r.Call(context.Background(), &runtime.Request{
		Pipeline:    pipeline.Single("echo", "native"),
		WorkDir:     t.TempDir(),
		CheckOutput: true,
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}
	if string(res.Output) != "native\n" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestToolNameOverrideSelectsEngine(t *testing.T) {
	// cp itself is unmapped; the override routes the call through the
	// tool's container.
	r := newSingularityRunner(t, `printf 'containerized'`)

	res, err := r.Call(context.Background(), &runtime.Request{
		Pipeline:    pipeline.Single("cp", "/vg/scripts/plot.R", "."),
		WorkDir:     t.TempDir(),
		CheckOutput: true,
		ToolName:    "vg",
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}
	if string(res.Output) != "containerized" {
		t.Errorf("output = %q, want the containerized marker", res.Output)
	}
}

func TestConcurrentCallsDoNotInterleave(t *testing.T) {
	// Half the calls run natively, half through the engine that requires
	// the ambient-environment lock; every call must come back with its
	// own uncorrupted output.
	singularityRunner := newSingularityRunner(t,
		`while [ $# -gt 1 ]; do shift; done; printf '%s' "$1"`)
	nativeRunner := newNativeRunner()

	const calls = 50
	results := make([]string, calls)
	callErrs := make([]error, calls)

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := fmt.Sprintf("payload-%03d", i)
			var res *runtime.Result
			var err error
			if i%2 == 0 {
				res, err = nativeRunner.Call(context.Background(), &runtime.Request{
					Pipeline:    pipeline.Single("printf", "%s", payload),
					WorkDir:     t.TempDir(),
					CheckOutput: true,
				})
			} else {
				res, err = singularityRunner.Call(context.Background(), &runtime.Request{
					Pipeline:    pipeline.Single("vg", payload),
					WorkDir:     t.TempDir(),
					CheckOutput: true,
				})
			}
			callErrs[i] = err
			if err == nil {
				results[i] = string(res.Output)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		if callErrs[i] != nil {
			t.Errorf("call %d failed: %s", i, callErrs[i])
			continue
		}
		want := fmt.Sprintf("payload-%03d", i)
		if results[i] != want {
			t.Errorf("call %d output = %q, want %q", i, results[i], want)
		}
	}
}
