package runner

import (
	"bufio"
	"io"
	"log/slog"
)

// startStderrRelay returns a pipe write end to use as a call's error sink.
// A background worker drains the read end line by line into the diagnostic
// log as the call runs, so long tool invocations are observable before they
// finish. The worker only mirrors bytes; it never affects the call's
// outcome. It exits when the write end is closed and is not joined.
func startStderrRelay() io.WriteCloser {
	pr, pw := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			slog.Info("(stderr) " + scanner.Text())
		}
		pr.Close()
	}()
	return pw
}
