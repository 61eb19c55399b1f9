package download

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/progress"
	"tubefront/internal/services/ytdlp"
)

// sink turns engine progress events into snapshots. The engine may call it
// from its own goroutine.
type sink struct {
	service *Service
	job     *Job
	ctx     context.Context
	logger  *slog.Logger

	mu      sync.Mutex
	sampler *logging.ProgressSampler
}

func (s *Service) newSink(ctx context.Context, job *Job) *sink {
	return &sink{
		service: s,
		job:     job,
		ctx:     ctx,
		logger:  logging.WithContext(ctx, s.logger),
		sampler: logging.NewProgressSampler(10, 0),
	}
}

func (k *sink) handle(p ytdlp.Progress) {
	stage := k.stageFor(p.Status)
	snap := progress.Snapshot{
		Stage:           stage,
		DownloadedBytes: p.DownloadedBytes,
		TotalBytes:      p.TotalBytes,
		Percent:         p.Percent(),
	}
	if p.Filename != "" {
		snap.Filename = filepath.Base(p.Filename)
	}
	if p.Status == ytdlp.StatusError {
		snap.Message = "engine reported an error"
	}

	k.mu.Lock()
	emit := k.sampler.ShouldLog(logging.ProgressPoint{
		Stage:   string(stage),
		File:    snap.Filename,
		Percent: snap.Percent,
		Bytes:   p.DownloadedBytes,
	})
	k.mu.Unlock()

	var status jobs.Status
	if emit {
		k.logger.Info("download progress",
			logging.String("stage", string(stage)),
			logging.Float64("percent", snap.Percent),
			logging.Int64("downloaded_bytes", p.DownloadedBytes),
			logging.Int64("total_bytes", p.TotalBytes),
			logging.Duration("eta", p.ETA),
		)
		// Ledger writes follow the sampled cadence to keep SQLite traffic low.
		status = jobs.StatusDownloading
	}
	k.service.record(k.ctx, k.job, snap, status, nil)
}

func (k *sink) stageFor(status string) progress.Stage {
	switch status {
	case ytdlp.StatusPostProcessing:
		if k.job.Directive.ExtractAudio {
			return progress.StagePostProcessing
		}
		return progress.StageMerging
	default:
		return progress.StageDownloading
	}
}
