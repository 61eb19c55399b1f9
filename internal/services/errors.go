package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInputInvalid marks requests rejected before any engine call.
	ErrInputInvalid = errors.New("invalid input")
	// ErrCredentialUnavailable marks a degraded credential provisioning attempt.
	// It is logged, never returned to callers.
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrCatalogFetch marks a failed metadata-only engine call.
	ErrCatalogFetch = errors.New("catalog fetch failed")
	// ErrNoViableFormat marks a selection that could not produce a plan.
	ErrNoViableFormat = errors.New("no viable format")
	// ErrDownloadFailed marks an engine failure or a missing output file.
	ErrDownloadFailed = errors.New("download failed")
	// ErrLifecycle marks cleanup faults. Logged, never surfaced.
	ErrLifecycle = errors.New("lifecycle fault")
	// ErrRateLimited marks requests refused by the API limiter.
	ErrRateLimited = errors.New("rate limited")

	// Catalog fetch classifications.
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("network error")
	ErrEngine   = errors.New("engine error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrEngine
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error to the short classification stored with failed jobs.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputInvalid):
		return "input_invalid"
	case errors.Is(err, ErrNoViableFormat):
		return "no_viable_format"
	case errors.Is(err, ErrCatalogFetch):
		return "catalog_fetch"
	case errors.Is(err, ErrDownloadFailed):
		return "download_failed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
