package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	errs "vgrun/internal/errors"
)

// relayState tracks the streaming relay loop of a detached container's FIFO.
type relayState int

const (
	// awaitingData: FIFO open, no bytes seen yet. The writer may not have
	// opened its end, or may never open it.
	awaitingData relayState = iota
	// streaming: at least one byte arrived, so the writer opened the FIFO
	// and will eventually close it.
	streaming
	// lastChance: the container is confirmed stopped; drain whatever is
	// still buffered, then give up on the next empty timeout.
	lastChance
	relayDone
)

// fifoRelay copies a detached container's output from a host-side FIFO to
// the call's output sink. The read end is opened non-blocking and the loop
// only ever suspends on a bounded poll, so a container that dies without
// opening its end of the FIFO cannot hang the host.
type fifoRelay struct {
	path string
	sink io.Writer

	// pollTimeout bounds each wait for the FIFO to become readable;
	// grace is the one-time drain window after the container stops.
	pollTimeout time.Duration
	grace       time.Duration
	chunkSize   int

	sleep func(time.Duration)
}

func newFifoRelay(path string, sink io.Writer) *fifoRelay {
	return &fifoRelay{
		path:        path,
		sink:        sink,
		pollTimeout: 10 * time.Second,
		grace:       10 * time.Second,
		chunkSize:   64 * 1024,
		sleep:       time.Sleep,
	}
}

// run drains the FIFO until end-of-stream. alive reports whether the
// container is still in a running state; it is consulted only when a wait
// times out with no data, to distinguish a slow container from a dead one.
// The FIFO file descriptor is closed on every exit path.
func (f *fifoRelay) run(ctx context.Context, alive func(context.Context) (bool, error)) (err error) {
	fd, openErr := unix.Open(f.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if openErr != nil {
		return &errs.StreamingSetupError{Path: f.path, Err: openErr}
	}
	defer unix.Close(fd)

	state := awaitingData
	buf := make([]byte, f.chunkSize)

	for state != relayDone {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		readable, pollErr := pollReadable(fd, f.pollTimeout)
		if pollErr != nil {
			return fmt.Errorf("polling output fifo: %w", pollErr)
		}

		var data []byte
		if readable {
			n, readErr := unix.Read(fd, buf)
			switch {
			case readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK:
				// Raced with the writer; same as a timeout.
			case readErr != nil:
				return fmt.Errorf("reading output fifo: %w", readErr)
			case n == 0:
				// EOF: the writer closed its end.
				state = relayDone
				continue
			default:
				data = buf[:n]
			}
		}

		if data != nil {
			if _, writeErr := f.sink.Write(data); writeErr != nil {
				return fmt.Errorf("forwarding container output: %w", writeErr)
			}
			if state == awaitingData {
				state = streaming
			}
			// In lastChance we keep draining until a timeout with
			// nothing left.
			continue
		}

		// Timed out with no data.
		switch state {
		case lastChance:
			slog.Warn("Giving up on container output", "fifo", f.path)
			state = relayDone
		case awaitingData, streaming:
			running, aliveErr := alive(ctx)
			if aliveErr != nil {
				return fmt.Errorf("checking container liveness: %w", aliveErr)
			}
			if !running {
				// Stopped container: allow one grace period for
				// buffered bytes to percolate through, then the
				// next empty timeout ends the loop.
				f.sleep(f.grace)
				state = lastChance
			}
		}
	}

	return nil
}

// pollReadable waits up to timeout for the fd to have data or an error
// condition. EINTR is retried with the full timeout, which keeps the wait
// bounded in practice since the timeout is short.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		return fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
	}
}
