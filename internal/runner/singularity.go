package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	errs "vgrun/internal/errors"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

// callWithSingularity runs the pipeline through the singularity CLI. The
// CLI reads the ambient process environment rather than accepting an
// explicit one, so the overlay is applied under the process-wide environment
// lock and restored exactly afterwards; the lock is held for the whole
// invocation so concurrent calls never bleed into each other.
func (r *Runner) callWithSingularity(ctx context.Context, imageRef string, pl pipeline.Pipeline, workDir string, outFile, errFile io.Writer, checkOutput bool) (*runtime.Result, error) {
	slog.Info("Singularity Run", "command", pl.String(), "image", imageRef)
	start := time.Now()

	argv, err := r.singularityArgv(imageRef, pl, workDir)
	if err != nil {
		return nil, err
	}

	var capture *bytes.Buffer

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	switch {
	case checkOutput:
		capture = &bytes.Buffer{}
		cmd.Stdout = capture
	case outFile != nil:
		cmd.Stdout = outFile
	default:
		cmd.Stdout = os.Stdout
	}
	if errFile != nil {
		cmd.Stderr = errFile
	} else {
		cmd.Stderr = os.Stderr
	}

	overlay := map[string]string{
		"LC_ALL":            "C",
		"VG_FULL_TRACEBACK": "1",
		"TMPDIR":            ".",
	}

	// cmd.Env stays nil: the child inherits the ambient environment,
	// which is exactly the channel the overlay must travel through.
	runErr := withAmbientEnv(overlay, cmd.Run)

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			dumpSingularityFailure(pl, capture, checkOutput, outFile)
			return nil, &errs.ContainerFailedError{
				Command:  pl.String(),
				Image:    imageRef,
				ExitCode: exitErr.ExitCode(),
			}
		}
		if errors.Is(runErr, exec.ErrNotFound) {
			return nil, errs.NewEngineError(
				"Failed to invoke singularity",
				runErr.Error(),
				"Check that the singularity binary is on PATH",
				runErr)
		}
		return nil, runErr
	}

	slog.Info("Successfully singularity ran", "command", pl.String(), "seconds", time.Since(start).Seconds())

	if outFile != nil {
		if err := syncSink(outFile); err != nil {
			return nil, err
		}
	}

	res := &runtime.Result{}
	if checkOutput {
		res.Output = capture.Bytes()
	}
	return res, nil
}

// singularityArgv builds the CLI invocation: the working directory is bound
// to the same fixed internal path Docker uses, and multi-stage pipelines go
// through a shell so singularity performs the piping in one call.
func (r *Runner) singularityArgv(imageRef string, pl pipeline.Pipeline, workDir string) ([]string, error) {
	argv := []string{r.singularityBin, "-q", "exec"}
	if workDir != "" {
		absWorkDir, err := filepath.Abs(workDir)
		if err != nil {
			return nil, err
		}
		argv = append(argv, "--pwd", containerWorkDir, "-B", absWorkDir+":"+containerWorkDir)
	}
	argv = append(argv, "docker://"+imageRef)
	if len(pl) == 1 {
		argv = append(argv, pl[0].Argv()...)
	} else {
		argv = append(argv, "/bin/bash", "-c", shellRender(pl))
	}
	return argv, nil
}

func dumpSingularityFailure(pl pipeline.Pipeline, capture *bytes.Buffer, checkOutput bool, outFile io.Writer) {
	slog.Error("Singularity container failed", "command", pl.String())
	// stderr already went to the caller's sink or the inherited stream;
	// captured stdout is only diagnostic when it was not the caller's data.
	if checkOutput && capture != nil && capture.Len() > 0 && outFile == nil {
		logLines("stdout", capture)
	}
}
