package jobs

import (
	"strings"
	"time"
)

// Status is the lifecycle position of a job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProbing     Status = "probing"
	StatusDownloading Status = "downloading"
	StatusSending     Status = "sending"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// InterruptedReason is recorded for jobs that were in flight when the daemon stopped.
const InterruptedReason = "interrupted by daemon restart"

var allStatuses = []Status{
	StatusPending,
	StatusProbing,
	StatusDownloading,
	StatusSending,
	StatusCompleted,
	StatusFailed,
}

var inFlightStatuses = []Status{StatusProbing, StatusDownloading, StatusSending}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record is one ledger row.
type Record struct {
	ID           string     `json:"id"`
	URL          string     `json:"url,omitempty"`
	FormatID     string     `json:"format_id,omitempty"`
	AudioOnly    bool       `json:"audio_only"`
	Mode         string     `json:"mode,omitempty"`
	Directive    string     `json:"directive,omitempty"`
	Title        string     `json:"title,omitempty"`
	Status       Status     `json:"status"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Bytes        int64      `json:"bytes"`
	Filename     string     `json:"filename,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Summary aggregates ledger counts.
type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
