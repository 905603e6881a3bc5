package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	errs "vgrun/internal/errors"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

// writeFakeSingularity installs a shell script that stands in for the
// singularity binary and returns its path. The script receives the full
// CLI invocation (exec flags, docker:// image, then the tool command).
func writeFakeSingularity(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "singularity")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("Failed to write fake singularity: %s", err)
	}
	return path
}

func newSingularityRunner(t *testing.T, script string) *Runner {
	tools := runtime.NewToolImageMap(map[string]string{"vg": testImage}, runtime.EngineSingularity)
	return New(tools, WithSingularityCommand(writeFakeSingularity(t, script)))
}

func TestSingularityOverlayTravelsThroughAmbientEnv(t *testing.T) {
	t.Setenv("LC_ALL", "en_US.UTF-8")
	os.Unsetenv("VG_FULL_TRACEBACK")

	r := newSingularityRunner(t, `printf '%s %s' "$LC_ALL" "$VG_FULL_TRACEBACK"`)
	res, err := r.Call(context.Background(), &runtime.Request{
		Pipeline:    pipeline.Single("vg", "stats", "graph.vg"),
		WorkDir:     t.TempDir(),
		CheckOutput: true,
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}
	if string(res.Output) != "C 1" {
		t.Errorf("engine saw environment %q, want the overlay", res.Output)
	}

	// Exact restoration: the set variable has its old value back and the
	// unset one is unset again.
	if got := os.Getenv("LC_ALL"); got != "en_US.UTF-8" {
		t.Errorf("LC_ALL = %q after the call", got)
	}
	if _, ok := os.LookupEnv("VG_FULL_TRACEBACK"); ok {
		t.Error("VG_FULL_TRACEBACK should be unset again after the call")
	}
}

func TestSingularityInvocationShape(t *testing.T) {
	r := newSingularityRunner(t, `printf '%s\n' "$@"`)
	res, err := r.Call(context.Background(), &runtime.Request{
		Pipeline:    pipeline.Single("vg", "view", "graph.vg"),
		WorkDir:     t.TempDir(),
		CheckOutput: true,
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}

	lines := strings.Split(strings.TrimRight(string(res.Output), "\n"), "\n")
	want := []string{"-q", "exec", "--pwd", containerWorkDir}
	for i, arg := range want {
		if i >= len(lines) || lines[i] != arg {
			t.Fatalf("argv = %v, want prefix %v", lines, want)
		}
	}
	found := false
	for _, line := range lines {
		if line == "docker://"+testImage {
			found = true
		}
	}
	if !found {
		t.Errorf("argv %v is missing the docker:// image reference", lines)
	}
	if lines[len(lines)-1] != "graph.vg" {
		t.Errorf("argv %v should end with the tool command", lines)
	}
}

func TestSingularityMultiStageUsesShell(t *testing.T) {
	r := newSingularityRunner(t, `while [ $# -gt 1 ]; do shift; done; printf '%s' "$1"`)
	res, err := r.Call(context.Background(), &runtime.Request{
		Pipeline: pipeline.Pipeline{
			pipeline.New("vg", "view", "x.vg"),
			pipeline.New("wc", "-l"),
		},
		WorkDir:     t.TempDir(),
		CheckOutput: true,
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}
	if string(res.Output) != "vg view x.vg | wc -l" {
		t.Errorf("last argument = %q, want the folded shell pipeline", res.Output)
	}
}

func TestSingularityNonZeroExitIsContainerFailed(t *testing.T) {
	r := newSingularityRunner(t, "exit 3")
	_, err := r.Call(context.Background(), &runtime.Request{
		Pipeline: pipeline.Single("vg", "index", "graph.vg"),
		WorkDir:  t.TempDir(),
	})

	var failed *errs.ContainerFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("got %v, want ContainerFailedError", err)
	}
	if failed.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", failed.ExitCode)
	}
	if failed.Image != testImage {
		t.Errorf("Image = %q", failed.Image)
	}
}

func TestSingularityMissingBinary(t *testing.T) {
	tools := runtime.NewToolImageMap(map[string]string{"vg": testImage}, runtime.EngineSingularity)
	r := New(tools, WithSingularityCommand("vgrun-test-no-such-singularity"))

	_, err := r.Call(context.Background(), &runtime.Request{
		Pipeline: pipeline.Single("vg", "stats"),
		WorkDir:  t.TempDir(),
	})
	if !errors.Is(err, errs.ErrEngineUnavailable) {
		t.Errorf("got %v, want an engine-unavailable error", err)
	}
}

func TestSingularityOutputSinkSynced(t *testing.T) {
	r := newSingularityRunner(t, `printf 'streamed'`)

	sink := &syncBuffer{}
	_, err := r.Call(context.Background(), &runtime.Request{
		Pipeline: pipeline.Single("vg", "view", "graph.vg"),
		WorkDir:  t.TempDir(),
		OutFile:  sink,
	})
	if err != nil {
		t.Fatalf("Call failed: %s", err)
	}
	if sink.String() != "streamed" {
		t.Errorf("sink = %q", sink.String())
	}
	if !sink.synced {
		t.Error("output sink must be synced before returning")
	}
}
