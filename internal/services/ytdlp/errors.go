package ytdlp

import (
	"errors"
	"fmt"
	"strings"

	"tubefront/internal/services"
)

// EngineError carries the engine's diagnostic text verbatim.
type EngineError struct {
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *EngineError) Error() string {
	if e.Diagnostic != "" {
		return e.Diagnostic
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("yt-dlp exited with code %d", e.ExitCode)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Diagnostic extracts the engine's diagnostic from err, falling back to err's text.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Error()
	}
	return err.Error()
}

var (
	notFoundMarkers = []string{
		"video unavailable",
		"private video",
		"http error 404",
		"does not exist",
		"this video has been removed",
		"unsupported url",
		"is not a valid url",
	}
	networkMarkers = []string{
		"unable to download webpage",
		"timed out",
		"connection reset",
		"connection refused",
		"temporary failure in name resolution",
		"network is unreachable",
		"http error 5",
		"http error 429",
	}
)

func classify(err error) error {
	diag := strings.ToLower(Diagnostic(err))
	for _, marker := range notFoundMarkers {
		if strings.Contains(diag, marker) {
			return fmt.Errorf("%w: %w", services.ErrNotFound, err)
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(diag, marker) {
			return fmt.Errorf("%w: %w", services.ErrNetwork, err)
		}
	}
	return fmt.Errorf("%w: %w", services.ErrEngine, err)
}

// lastErrorLine returns the final "ERROR:" line of stderr, or the last
// non-empty line when no such marker exists.
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.ReplaceAll(stderr, "\r\n", "\n"), "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
		if last == "" {
			last = line
		}
	}
	return last
}
