package progress

import (
	"context"
	"errors"
	"time"
)

// Stage is the coarse phase a job is in.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageProbing        Stage = "probing"
	StageDownloading    Stage = "downloading"
	StageMerging        Stage = "merging"
	StagePostProcessing Stage = "post_processing"
	StageFinished       Stage = "finished"
	StageFailed         Stage = "failed"
)

// Terminal reports whether no further snapshots are expected.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageFailed
}

// Snapshot is the last known state of one job.
type Snapshot struct {
	JobID           string    `json:"job_id"`
	Stage           Stage     `json:"stage"`
	DownloadedBytes int64     `json:"downloaded_bytes"`
	TotalBytes      int64     `json:"total_bytes"`
	Percent         float64   `json:"percent"`
	Filename        string    `json:"filename,omitempty"`
	Message         string    `json:"message,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ErrJobIDRequired is returned when a snapshot carries no job id.
var ErrJobIDRequired = errors.New("progress snapshot requires a job id")

// Tracker records and serves snapshots.
type Tracker interface {
	Record(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, jobID string) (Snapshot, bool, error)
	Latest(ctx context.Context) (Snapshot, bool, error)
	Close() error
}

// Sweeper is implemented by backends that need an explicit expiry pass.
type Sweeper interface {
	Sweep() int
}

func stamp(snap Snapshot, now time.Time) (Snapshot, error) {
	if snap.JobID == "" {
		return Snapshot{}, ErrJobIDRequired
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = now
	}
	return snap, nil
}
