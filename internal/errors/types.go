package errors

import "errors"

var (
	ErrExecutableNotFound = errors.New("executable not found")
	ErrCommandFailed      = errors.New("command failed")
	ErrContainerFailed    = errors.New("container failed")
	ErrStreamingSetup     = errors.New("streaming setup failed")
	ErrConfigInvalid      = errors.New("configuration invalid")
	ErrEngineUnavailable  = errors.New("container engine unavailable")
	ErrRequestInvalid     = errors.New("execution request invalid")
)

// VGRunError carries user-facing context alongside the wrapped cause. The
// CLI's error handler renders Context/Cause/Suggestion; library callers
// unwrap to the typed errors in this package.
type VGRunError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *VGRunError) Error() string {
	return e.OriginalErr.Error()
}

func (e *VGRunError) Unwrap() error {
	return e.OriginalErr
}

func (e *VGRunError) Is(target error) bool {
	return target == e.Type
}

func NewVGRunError(errorType error, context, cause, suggestion string, originalErr error) *VGRunError {
	return &VGRunError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewConfigError(context, cause, suggestion string, originalErr error) *VGRunError {
	return NewVGRunError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewEngineError(context, cause, suggestion string, originalErr error) *VGRunError {
	return NewVGRunError(ErrEngineUnavailable, context, cause, suggestion, originalErr)
}
