package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	errs "vgrun/internal/errors"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

// callDirectly runs the pipeline as a chain of host processes, each stage's
// stdout piped into the next stage's stdin. The environment overlay is
// applied to a private copy handed to each child; the caller's global
// environment is never mutated.
func (r *Runner) callDirectly(ctx context.Context, pl pipeline.Pipeline, workDir string, outFile, errFile io.Writer, checkOutput bool) (*runtime.Result, error) {
	slog.Info("Run", "command", pl.String())
	start := time.Now()

	env := mergedEnviron(nativeOverlay())

	stderr := errFile
	if stderr == nil {
		stderr = os.Stderr
	}

	var capture *bytes.Buffer

	procs := make([]*exec.Cmd, len(pl))
	// Parent-side pipe fds; every one of these must be closed once the
	// children are started or the chain never sees EOF.
	var parentFds []*os.File
	var prevRead *os.File

	closeParentFds := func() {
		for _, f := range parentFds {
			f.Close()
		}
		parentFds = nil
	}

	for i, stage := range pl {
		argv := stage.Argv()
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = workDir
		cmd.Env = env
		cmd.Stderr = stderr
		if prevRead != nil {
			cmd.Stdin = prevRead
		}

		if i < len(pl)-1 {
			pr, pw, err := os.Pipe()
			if err != nil {
				closeParentFds()
				reapStarted(procs[:i])
				return nil, err
			}
			cmd.Stdout = pw
			parentFds = append(parentFds, pr, pw)
			prevRead = pr
		} else if checkOutput {
			capture = &bytes.Buffer{}
			cmd.Stdout = capture
		} else if outFile != nil {
			cmd.Stdout = outFile
		} else {
			cmd.Stdout = os.Stdout
		}

		if err := cmd.Start(); err != nil {
			closeParentFds()
			reapStarted(procs[:i])
			if errors.Is(err, exec.ErrNotFound) || isPermission(err, argv[0]) {
				return nil, &errs.ExecutableNotFoundError{Name: argv[0]}
			}
			return nil, err
		}
		procs[i] = cmd
	}

	// The children hold their own duplicates now.
	closeParentFds()

	// Wait on every stage before judging the call, then report the
	// earliest non-zero stage. A later stage exiting cleanly after
	// reading truncated input from a failed predecessor is not success.
	exitCodes := make([]int, len(procs))
	var waitErr error
	for i, proc := range procs {
		err := proc.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			exitCodes[i] = 0
		case errors.As(err, &exitErr):
			exitCodes[i] = exitErr.ExitCode()
		default:
			if waitErr == nil {
				waitErr = err
			}
			exitCodes[i] = -1
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}
	for i, code := range exitCodes {
		if code != 0 {
			return nil, &errs.CommandFailedError{Stage: i, Argv: pl[i].Argv(), ExitCode: code}
		}
	}

	slog.Info("Successfully ran", "command", pl.String(), "seconds", time.Since(start).Seconds())

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

// reapStarted unwinds stages that were already spawned when a later stage
// failed to start. Their pipe ends are closed, so they exit on EOF/SIGPIPE.
func reapStarted(procs []*exec.Cmd) {
	for _, proc := range procs {
		if proc != nil {
			_ = proc.Wait()
		}
	}
}

// isPermission matches the cryptic EACCES spawn failure for a binary that
// does not exist anywhere on PATH.
func isPermission(err error, name string) bool {
	if !errors.Is(err, os.ErrPermission) {
		return false
	}
	_, lookErr := exec.LookPath(name)
	return lookErr != nil
}

// syncSink flushes a provided output sink all the way to disk so callers can
// rely on subsequent reads seeing complete data.
func syncSink(w io.Writer) error {
	type syncer interface {
		Sync() error
	}
	if s, ok := w.(syncer); ok {
		return s.Sync()
	}
	return nil
}
