package errors

import (
	"fmt"
	"strings"
)

// The four terminal failure shapes a call can produce. None are retried by
// the runner; retry policy belongs to the surrounding scheduler.

// ExecutableNotFoundError reports a spawn-time failure to locate a native
// binary, distinct from a command that ran and exited non-zero.
type ExecutableNotFoundError struct {
	Name string
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s", e.Name)
}

func (e *ExecutableNotFoundError) Is(target error) bool {
	return target == ErrExecutableNotFound
}

// CommandFailedError reports a native pipeline stage that exited non-zero.
// Stage is the zero-based index of the failed stage; the earliest failed
// stage wins even when later stages exited cleanly.
type CommandFailedError struct {
	Stage    int
	Argv     []string
	ExitCode int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %s returned with non-zero exit status %d",
		strings.Join(e.Argv, " "), e.ExitCode)
}

func (e *CommandFailedError) Is(target error) bool {
	return target == ErrCommandFailed
}

// ContainerFailedError reports a containerized invocation that exited
// non-zero, under either engine.
type ContainerFailedError struct {
	Command  string
	Image    string
	ExitCode int
}

func (e *ContainerFailedError) Error() string {
	return fmt.Sprintf("container for command %s (image %s) failed with code %d",
		e.Command, e.Image, e.ExitCode)
}

func (e *ContainerFailedError) Is(target error) bool {
	return target == ErrContainerFailed
}

// StreamingSetupError reports a failure to create or mount the FIFO used
// for streamed output delivery, before the container ever ran.
type StreamingSetupError struct {
	Path string
	Err  error
}

func (e *StreamingSetupError) Error() string {
	return fmt.Sprintf("streaming setup failed for %s: %v", e.Path, e.Err)
}

func (e *StreamingSetupError) Unwrap() error {
	return e.Err
}

func (e *StreamingSetupError) Is(target error) bool {
	return target == ErrStreamingSetup
}
