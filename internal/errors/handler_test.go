package errors

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultHandlerIsSingleton(t *testing.T) {
	t.Setenv("VGRUN_LOG_DIR", t.TempDir())
	resetDefaultHandler()
	t.Cleanup(resetDefaultHandler)

	first, err := GetDefaultHandler()
	if err != nil {
		t.Fatalf("GetDefaultHandler failed: %s", err)
	}
	second, err := GetDefaultHandler()
	if err != nil {
		t.Fatalf("GetDefaultHandler failed: %s", err)
	}
	if first != second {
		t.Error("GetDefaultHandler should return the same handler")
	}
}

func TestHandleWritesStructuredLog(t *testing.T) {
	logDir := t.TempDir()
	t.Setenv("VGRUN_LOG_DIR", logDir)
	resetDefaultHandler()
	t.Cleanup(resetDefaultHandler)

	cause := &ContainerFailedError{Command: "vg stats", Image: "quay.io/vgteam/vg", ExitCode: 1}
	HandleError(NewVGRunError(ErrContainerFailed,
		"Containerized pipeline failed", cause.Error(),
		"Inspect the dumped container logs", cause))

	data, err := os.ReadFile(filepath.Join(logDir, "vgrun.log"))
	if err != nil {
		t.Fatalf("Log file not written: %s", err)
	}
	if !strings.Contains(string(data), "container_failed") {
		t.Errorf("Log entry missing error type: %s", data)
	}
	if !strings.Contains(string(data), "Containerized pipeline failed") {
		t.Errorf("Log entry missing context: %s", data)
	}
}
