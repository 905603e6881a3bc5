package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/docker/docker/client"

	"vgrun/pkg/pipeline"
	"vgrun/pkg/runtime"
)

// DockerAvailable reports whether a Docker daemon is reachable on this
// machine.
func DockerAvailable(ctx context.Context) bool {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer dockerClient.Close()
	_, err = dockerClient.Ping(ctx)
	return err == nil
}

// FetchScript places one of vg's helper scripts into the working directory
// and returns its path. Where the script comes from depends on how vg runs:
// containerized, it is copied out of the image (vg lives at /vg there);
// natively, it is copied from the scripts directory alongside the vg binary.
func (r *Runner) FetchScript(ctx context.Context, scriptName, workDir string) (string, error) {
	dest := filepath.Join(workDir, scriptName)

	if r.tools.EngineFor("vg") != runtime.EngineNone {
		req := &runtime.Request{
			Pipeline: pipeline.Single("cp", filepath.Join("/vg", "scripts", scriptName), "."),
			WorkDir:  workDir,
			ToolName: "vg",
		}
		if _, err := r.Call(ctx, req); err != nil {
			return "", fmt.Errorf("copying %s out of the vg container: %w", scriptName, err)
		}
		return dest, nil
	}

	vgPath, err := exec.LookPath("vg")
	if err != nil {
		return "", fmt.Errorf("locating vg on PATH: %w", err)
	}
	src := filepath.Join(filepath.Dir(vgPath), "..", "scripts", scriptName)
	if err := copyFile(src, dest); err != nil {
		return "", fmt.Errorf("copying %s from the vg install: %w", scriptName, err)
	}
	return dest, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
