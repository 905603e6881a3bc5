// Package runtime defines the execution-mode model shared by the runner and
// its callers: which container engine (if any) a tool runs under, and the
// shape of a single execution request and its result.
package runtime

import (
	"io"
	"strings"

	"vgrun/pkg/pipeline"
)

// EngineKind selects how a pipeline is executed.
type EngineKind string

const (
	// EngineNone runs commands directly as host processes.
	EngineNone EngineKind = "None"
	// EngineDocker runs the pipeline inside a Docker container via the
	// daemon API.
	EngineDocker EngineKind = "Docker"
	// EngineSingularity runs the pipeline through the singularity CLI.
	EngineSingularity EngineKind = "Singularity"
)

// ToolImageMap resolves logical tool names (e.g. "vg", "samtools") to
// container image references under a single global engine selector. Built
// once from configuration and read-only afterwards; safe for concurrent use.
// Tool names are matched case-insensitively: config loaders are free to
// normalize key case.
type ToolImageMap struct {
	images map[string]string
	engine EngineKind
}

// NewToolImageMap copies the given tool-to-image mapping. engine is the
// global selector applied to every tool that has an image configured.
func NewToolImageMap(images map[string]string, engine EngineKind) *ToolImageMap {
	owned := make(map[string]string, len(images))
	for name, ref := range images {
		owned[strings.ToLower(name)] = ref
	}
	return &ToolImageMap{images: owned, engine: engine}
}

// ImageFor returns the image reference and engine for a tool. The image is
// "" when the tool resolves to native execution.
func (m *ToolImageMap) ImageFor(tool string) (string, EngineKind) {
	if m.EngineFor(tool) == EngineNone {
		return "", EngineNone
	}
	return m.images[strings.ToLower(tool)], m.engine
}

// EngineFor returns how a call for the given tool would be run. A tool
// resolves to a container engine only when the global selector names one AND
// the tool has a non-empty, non-"none" image configured; otherwise native.
func (m *ToolImageMap) EngineFor(tool string) EngineKind {
	if m.engine != EngineDocker && m.engine != EngineSingularity {
		return EngineNone
	}
	ref, ok := m.images[strings.ToLower(tool)]
	if !ok || ref == "" || strings.EqualFold(ref, "none") {
		return EngineNone
	}
	return m.engine
}

// Request describes one call into the runner.
type Request struct {
	// Pipeline is the command chain to run. Required, non-empty.
	Pipeline pipeline.Pipeline

	// WorkDir is the host directory the pipeline runs in. It is mounted
	// into containers and expected to hold the call's input files.
	WorkDir string

	// OutFile receives the final stage's standard output. Nil means the
	// output is inherited (native) or discarded to the engine's log
	// buffer (containerized). Mutually exclusive with CheckOutput.
	OutFile io.Writer

	// ErrFile receives the call's standard error. Nil means inherited.
	ErrFile io.Writer

	// CheckOutput captures the final stage's standard output in memory
	// and returns it in the Result.
	CheckOutput bool

	// ToolName overrides the registry lookup key; by default the first
	// argument of the first stage is used.
	ToolName string
}

// Tool returns the registry lookup key for the request.
func (r *Request) Tool() string {
	if r.ToolName != "" {
		return r.ToolName
	}
	return r.Pipeline.Tool()
}

// Result is the outcome of a successful call. Output is non-nil only when
// the request asked for captured output.
type Result struct {
	Output []byte
}
