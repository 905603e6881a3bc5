package runner

import (
	"strings"

	"golang.org/x/sys/unix"

	"vgrun/pkg/pipeline"
)

// shellRender renders a pipeline as a single shell command line with every
// argument single-quoted, for handing to bash -c inside a container.
func shellRender(pl pipeline.Pipeline) string {
	stages := make([]string, len(pl))
	for i, cmd := range pl {
		argv := cmd.Argv()
		quoted := make([]string, len(argv))
		for j, arg := range argv {
			quoted[j] = shellQuote(arg)
		}
		stages[i] = strings.Join(quoted, " ")
	}
	return strings.Join(stages, " | ")
}

// shellQuote single-quotes an argument, closing and reopening the quote
// around embedded single quotes.
func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n\"'\\$&|;<>(){}[]*?~#`!") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// sanitizeName reduces a tool name to characters Docker accepts in a
// container name.
func sanitizeName(tool string) string {
	var b strings.Builder
	for _, r := range tool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "tool"
	}
	return b.String()
}

func mkfifo(path string) error {
	return unix.Mkfifo(path, 0o600)
}
