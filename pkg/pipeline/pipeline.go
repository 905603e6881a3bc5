// Package pipeline models a command pipeline: an ordered chain of tool
// invocations whose standard streams are connected by pipes.
package pipeline

import "strings"

// Command is a single tool invocation: the executable name followed by its
// arguments. Construct with New; the slice is copied so callers cannot
// mutate a Command after handing it to the runner.
type Command struct {
	argv []string
}

// New builds a Command from an argv slice.
func New(argv ...string) Command {
	owned := make([]string, len(argv))
	copy(owned, argv)
	return Command{argv: owned}
}

// Argv returns a copy of the command's arguments.
func (c Command) Argv() []string {
	out := make([]string, len(c.argv))
	copy(out, c.argv)
	return out
}

// Tool returns the executable name (the first argument), or "" for an empty
// Command.
func (c Command) Tool() string {
	if len(c.argv) == 0 {
		return ""
	}
	return c.argv[0]
}

// Len returns the number of arguments including the executable name.
func (c Command) Len() int {
	return len(c.argv)
}

func (c Command) String() string {
	return strings.Join(c.argv, " ")
}

// Pipeline is an ordered, non-empty sequence of Commands joined by Unix
// pipes: stage i's standard output feeds stage i+1's standard input. A
// Pipeline is never split across container engines; the whole chain runs
// under a single engine or natively.
type Pipeline []Command

// Single wraps one command as a Pipeline.
func Single(argv ...string) Pipeline {
	return Pipeline{New(argv...)}
}

// Tool returns the lead tool name: the executable of the first stage.
func (p Pipeline) Tool() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Tool()
}

// String renders the pipeline the way a shell would, e.g. "vg view x | wc -l".
func (p Pipeline) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = c.String()
	}
	return strings.Join(parts, " | ")
}

// Validate reports whether the pipeline is runnable: at least one stage, and
// every stage has an executable name.
func (p Pipeline) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPipeline
	}
	for i, c := range p {
		if c.Len() == 0 {
			return &EmptyStageError{Stage: i}
		}
	}
	return nil
}
