package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"vgrun/internal/ui"
)

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
}

func NewErrorHandler() (*ErrorHandler, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	console := ui.NewConsole()

	return &ErrorHandler{
		logger:  logger,
		console: console,
	}, nil
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	// Check for environment variable override first
	if customLogDir := os.Getenv("VGRUN_LOG_DIR"); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "vgrun"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// XDG Base Directory
		return filepath.Join(homeDir, ".local", "share", "vgrun", "logs"), nil
	default:
		return filepath.Join(homeDir, ".vgrun", "logs"), nil
	}
}

func createLogFile() (*os.File, error) {
	logDir, err := getOSStandardLogDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0750); err != nil {
		// Fall back to the working directory rather than losing the log.
		logDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine log directory: %w", err)
		}
	}

	logPath := filepath.Join(logDir, "vgrun.log")
	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var runErr *VGRunError
	if errors.As(err, &runErr) {
		h.handleVGRunError(runErr)
	} else {
		h.handleGenericError(err)
	}
}

func (h *ErrorHandler) handleVGRunError(err *VGRunError) {
	h.logStructuredError(err)

	message := h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion)
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logStructuredError(err *VGRunError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.OriginalErr.Error()),
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("context", err.Context),
	}

	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "vgrun error occurred", logAttrs...)
}

var (
	defaultHandler *ErrorHandler
	handlerOnce    sync.Once
)

// GetDefaultHandler returns the process-wide handler, constructing it (and
// its log file) on first use.
func GetDefaultHandler() (*ErrorHandler, error) {
	var err error
	handlerOnce.Do(func() {
		defaultHandler, err = NewErrorHandler()
	})
	return defaultHandler, err
}

// HandleError reports err through the default handler. When the handler
// itself cannot be constructed the report is dropped rather than cascading.
func HandleError(err error) {
	if handler, handlerErr := GetDefaultHandler(); handlerErr == nil {
		handler.Handle(err)
	}
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	defaultHandler = nil
	handlerOnce = sync.Once{}
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrExecutableNotFound:
		return "executable_not_found"
	case ErrCommandFailed:
		return "command_failed"
	case ErrContainerFailed:
		return "container_failed"
	case ErrStreamingSetup:
		return "streaming_setup_failed"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrEngineUnavailable:
		return "engine_unavailable"
	case ErrRequestInvalid:
		return "request_invalid"
	default:
		return "unknown"
	}
}
