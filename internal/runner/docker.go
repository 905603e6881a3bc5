package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	errs "vgrun/internal/errors"
	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

const (
	// containerWorkDir is where the call's working directory is mounted
	// inside every container.
	containerWorkDir = "/data"
	// fifoMountDir is where the FIFO's host directory is mounted for
	// streamed output delivery.
	fifoMountDir = "/control"
	fifoName     = "stdout.fifo"
)

// The image whose packaged entrypoint is not on the container's search path
// and must be invoked by absolute path.
const platypusImage = "quay.io/biocontainers/platypus-variant:0.8.1.1--htslib1.7_1"
const platypusBinary = "/usr/local/share/platypus-variant-0.8.1.1-1/Platypus.py"

// dockerAPI is the slice of the Docker daemon client the runner uses.
// *client.Client satisfies it; tests substitute a fake.
type dockerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Ping(ctx context.Context) (types.Ping, error)
}

// newDockerClient connects to the local daemon the way the CLI does and
// verifies it is reachable.
func newDockerClient(ctx context.Context) (dockerAPI, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.NewEngineError(
			"Failed to create Docker client",
			err.Error(),
			"Check that Docker is installed and DOCKER_HOST is valid",
			err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, errs.NewEngineError(
			"Failed to connect to Docker daemon",
			err.Error(),
			"Check that the Docker daemon is running",
			err)
	}
	return dockerClient, nil
}

// callWithDocker runs the pipeline as a single containerized invocation.
// Multi-stage pipelines are folded into one bash -c call so the container,
// not the host, performs the inter-stage piping.
func (r *Runner) callWithDocker(ctx context.Context, imageRef string, pl pipeline.Pipeline, workDir string, outFile, errFile io.Writer, checkOutput bool) (*runtime.Result, error) {
	slog.Info("Docker Run", "command", pl.String(), "image", imageRef)
	start := time.Now()

	api, err := r.dockerAPI(ctx)
	if err != nil {
		return nil, err
	}

	tool := pl.Tool()
	pl = rewriteQuirkPaths(imageRef, pl)

	env := envSlice(containerOverlay(tool))

	var mounts []mount.Mount
	workingDir := ""
	if workDir != "" {
		absWorkDir, absErr := filepath.Abs(workDir)
		if absErr != nil {
			return nil, absErr
		}
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: absWorkDir,
			Target: containerWorkDir,
		})
		workingDir = containerWorkDir
	}

	r.pullImage(ctx, api, imageRef)

	if outFile != nil {
		return r.dockerStreamedRun(ctx, api, imageRef, pl, mounts, workingDir, env, outFile, errFile, start)
	}
	return r.dockerDirectRun(ctx, api, imageRef, pl, mounts, workingDir, env, errFile, checkOutput, start)
}

// dockerDirectRun starts the container and waits for it, capturing stdout
// from the engine's log buffer when requested.
func (r *Runner) dockerDirectRun(ctx context.Context, api dockerAPI, imageRef string, pl pipeline.Pipeline, mounts []mount.Mount, workingDir string, env []string, errFile io.Writer, checkOutput bool, start time.Time) (*runtime.Result, error) {
	config := &container.Config{
		Image:      imageRef,
		Env:        env,
		WorkingDir: workingDir,
	}
	if len(pl) == 1 {
		// Split off the first argument as the entrypoint so it does not
		// matter whether the image declares one.
		argv := pl[0].Argv()
		config.Entrypoint = strslice.StrSlice{argv[0]}
		config.Cmd = strslice.StrSlice(argv[1:])
	} else {
		// The engine performs the piping: the whole chain goes through
		// a shell.
		config.Entrypoint = strslice.StrSlice{"/bin/bash"}
		config.Cmd = strslice.StrSlice{"-c", shellRender(pl)}
	}

	containerID, err := r.startContainer(ctx, api, config, mounts, pl.Tool())
	if err != nil {
		return nil, err
	}
	defer removeContainer(api, containerID)

	exitCode, err := waitContainer(ctx, api, containerID)
	if err != nil {
		return nil, err
	}

	if exitCode != 0 {
		dumpContainerLogs(ctx, api, containerID, pl, !checkOutput)
		return nil, &errs.ContainerFailedError{Command: pl.String(), Image: imageRef, ExitCode: exitCode}
	}

	if errFile != nil {
		// The detached model cannot stream stderr live; deliver it
		// after the fact from the log buffer.
		if err := copyContainerStream(ctx, api, containerID, errFile, false, true); err != nil {
			return nil, err
		}
	}

	res := &runtime.Result{}
	if checkOutput {
		var captured bytes.Buffer
		if err := copyContainerStream(ctx, api, containerID, &captured, true, false); err != nil {
			return nil, err
		}
		res.Output = captured.Bytes()
	}

	slog.Info("Successfully docker ran", "command", pl.String(), "seconds", time.Since(start).Seconds())
	return res, nil
}

// dockerStreamedRun delivers the container's stdout into the caller's sink
// through a host-side FIFO, since the engine API cannot redirect container
// output into an arbitrary host file descriptor.
func (r *Runner) dockerStreamedRun(ctx context.Context, api dockerAPI, imageRef string, pl pipeline.Pipeline, mounts []mount.Mount, workingDir string, env []string, outFile, errFile io.Writer, start time.Time) (*runtime.Result, error) {
	fifoDir, err := os.MkdirTemp("", "vgrun-fifo-")
	if err != nil {
		return nil, &errs.StreamingSetupError{Path: "", Err: err}
	}
	defer os.RemoveAll(fifoDir)

	fifoHostPath := filepath.Join(fifoDir, fifoName)
	if err := mkfifo(fifoHostPath); err != nil {
		return nil, &errs.StreamingSetupError{Path: fifoHostPath, Err: err}
	}

	// The container does not need the mountpoint directory to pre-exist
	// in its filesystem.
	mounts = append(mounts, mount.Mount{
		Type:   mount.TypeBind,
		Source: fifoDir,
		Target: fifoMountDir,
	})

	// Redirect the pipeline's output by tacking on another stage that
	// copies stdout into the mounted FIFO.
	staged := append(pipeline.Pipeline{}, pl...)
	staged = append(staged, pipeline.New("dd", "of="+fifoMountDir+"/"+fifoName))

	config := &container.Config{
		Image:      imageRef,
		Env:        env,
		WorkingDir: workingDir,
		Entrypoint: strslice.StrSlice{"/bin/bash"},
		Cmd:        strslice.StrSlice{"-c", shellRender(staged)},
	}

	containerID, err := r.startContainer(ctx, api, config, mounts, pl.Tool())
	if err != nil {
		return nil, err
	}
	defer removeContainer(api, containerID)
	slog.Debug("Asked for container", "id", containerID)

	// A container that goes badly enough may never open the other end of
	// the FIFO, so the relay cannot just block until EOF; it polls
	// container liveness whenever the FIFO stays silent.
	relay := r.newRelay(fifoHostPath, outFile)
	relayErr := relay.run(ctx, func(ctx context.Context) (bool, error) {
		return containerRunning(ctx, api, containerID)
	})

	exitCode, waitErr := waitContainer(ctx, api, containerID)
	if relayErr != nil {
		return nil, relayErr
	}
	if waitErr != nil {
		return nil, waitErr
	}

	if exitCode != 0 {
		// stdout was the caller's data, so only stderr goes to the log.
		dumpContainerLogs(ctx, api, containerID, pl, false)
		return nil, &errs.ContainerFailedError{Command: pl.String(), Image: imageRef, ExitCode: exitCode}
	}

	if errFile != nil {
		if err := copyContainerStream(ctx, api, containerID, errFile, false, true); err != nil {
			return nil, err
		}
	}

	if err := syncSink(outFile); err != nil {
		return nil, err
	}

	slog.Info("Successfully docker ran", "command", pl.String(), "seconds", time.Since(start).Seconds())
	return &runtime.Result{}, nil
}

func (r *Runner) startContainer(ctx context.Context, api dockerAPI, config *container.Config, mounts []mount.Mount, tool string) (string, error) {
	hostConfig := &container.HostConfig{Mounts: mounts}
	name := fmt.Sprintf("vgrun-%s-%s", sanitizeName(tool), uuid.New().String())

	resp, err := api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		removeContainer(api, resp.ID)
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return resp.ID, nil
}

// pullImage refreshes the image before each call, tolerating pull failures
// when the image is already available locally.
func (r *Runner) pullImage(ctx context.Context, api dockerAPI, imageRef string) {
	reader, err := api.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		slog.Warn("Image pull failed; trying local image", "image", imageRef, "error", err)
		return
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		slog.Warn("Image pull stream interrupted", "image", imageRef, "error", err)
	}
}

func waitContainer(ctx context.Context, api dockerAPI, containerID string) (int, error) {
	waitCh, errCh := api.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return 0, fmt.Errorf("container wait: %s", resp.Error.Message)
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		return 0, fmt.Errorf("container wait: %w", err)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// containerRunning is the liveness poll for the streaming relay.
func containerRunning(ctx context.Context, api dockerAPI, containerID string) (bool, error) {
	inspect, err := api.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, err
	}
	if inspect.State == nil {
		return false, nil
	}
	switch inspect.State.Status {
	case "created", "restarting", "running", "removing":
		return true, nil
	default:
		return false, nil
	}
}

// copyContainerStream demuxes one of the container's log streams into w.
func copyContainerStream(ctx context.Context, api dockerAPI, containerID string, w io.Writer, wantStdout, wantStderr bool) error {
	logs, err := api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: wantStdout,
		ShowStderr: wantStderr,
	})
	if err != nil {
		return fmt.Errorf("failed to get container logs: %w", err)
	}
	defer logs.Close()

	stdout, stderr := io.Discard, io.Discard
	if wantStdout {
		stdout = w
	}
	if wantStderr {
		stderr = w
	}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return fmt.Errorf("failed to read container logs: %w", err)
	}
	return nil
}

// dumpContainerLogs sends a failed container's stderr (and optionally its
// stdout, when the caller did not want stdout as data) to the diagnostic log.
func dumpContainerLogs(ctx context.Context, api dockerAPI, containerID string, pl pipeline.Pipeline, includeStdout bool) {
	slog.Error("Docker container failed", "command", pl.String())

	var stderrBuf bytes.Buffer
	if err := copyContainerStream(ctx, api, containerID, &stderrBuf, false, true); err != nil {
		slog.Error("Could not dump container stderr", "error", err)
	} else {
		logLines("stderr", &stderrBuf)
	}

	if includeStdout {
		var stdoutBuf bytes.Buffer
		if err := copyContainerStream(ctx, api, containerID, &stdoutBuf, true, false); err != nil {
			slog.Error("Could not dump container stdout", "error", err)
		} else {
			logLines("stdout", &stdoutBuf)
		}
	}
}

func logLines(stream string, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(buf)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		slog.Error("container "+stream, "line", scanner.Text())
	}
}

func removeContainer(api dockerAPI, containerID string) {
	// Removal is best-effort and must survive a cancelled call context.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		slog.Error("Failed to remove container", "containerID", containerID, "error", err)
	}
}

// rewriteQuirkPaths fixes tools whose containerized binary is not on the
// image's search path.
func rewriteQuirkPaths(imageRef string, pl pipeline.Pipeline) pipeline.Pipeline {
	if imageRef != platypusImage || pl.Tool() != "Platypus.py" {
		return pl
	}
	first := pl[0].Argv()
	first[0] = platypusBinary
	out := append(pipeline.Pipeline{pipeline.New(first...)}, pl[1:]...)
	return out
}

func envSlice(overlay map[string]string) []string {
	env := make([]string, 0, len(overlay))
	for name, val := range overlay {
		env = append(env, name+"="+val)
	}
	return env
}
