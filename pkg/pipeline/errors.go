package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyPipeline is returned by Validate for a pipeline with no stages.
var ErrEmptyPipeline = errors.New("pipeline has no stages")

// EmptyStageError reports a stage with no executable name.
type EmptyStageError struct {
	Stage int
}

func (e *EmptyStageError) Error() string {
	return fmt.Sprintf("pipeline stage %d is empty", e.Stage)
}
