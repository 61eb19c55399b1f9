package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"

	"tubefront/internal/catalog"
	"tubefront/internal/config"
	"tubefront/internal/credentials"
	"tubefront/internal/daemon"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/notifications"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/selection"
	"tubefront/internal/services/ytdlp"
)

// Build wires the download pipeline from cfg. The returned close function
// releases the tracker and ledger; call it once the components are no longer
// used. The daemon's Close does the same, so callers handing the components
// to a daemon should not call it as well.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (daemon.Components, func() error, error) {
	var comp daemon.Components
	if cfg == nil {
		return comp, nil, errors.New("config is required")
	}

	engine, err := ytdlp.New(cfg.EngineBinary(), EngineSettings(cfg), ytdlp.WithTimeouts(cfg.ProbeTimeout(), cfg.DownloadTimeout()))
	if err != nil {
		return comp, nil, fmt.Errorf("engine: %w", err)
	}
	outputs, err := scratch.NewManager(cfg.Paths.ScratchDir, logger)
	if err != nil {
		return comp, nil, fmt.Errorf("scratch: %w", err)
	}
	tracker, err := progress.New(ctx, cfg)
	if err != nil {
		return comp, nil, fmt.Errorf("progress tracker: %w", err)
	}

	var ledger *jobs.Store
	if cfg.Jobs.LedgerEnabled {
		ledger, err = jobs.Open(cfg)
		if err != nil {
			_ = tracker.Close()
			return comp, nil, fmt.Errorf("job ledger: %w", err)
		}
	}

	fetcher := catalog.NewFetcher(engine, cfg.Policy.AudioFormat, logger)
	creds := credentials.New(cfg.Credentials.Source, cfg.Credentials.WorkDir, cfg.Credentials.SharedCopy, logger)

	opts := []download.Option{download.WithCatalog(fetcher)}
	if ledger != nil {
		opts = append(opts, download.WithLedger(ledger))
	}
	if notifier := notifications.NewService(cfg); notifications.Enabled(notifier) {
		opts = append(opts, download.WithNotifier(notifier))
	}
	svc, err := download.NewService(engine, creds, outputs, tracker, DownloadSettings(cfg), logger, opts...)
	if err != nil {
		_ = tracker.Close()
		if ledger != nil {
			_ = ledger.Close()
		}
		return comp, nil, err
	}

	comp = daemon.Components{
		Downloads:   svc,
		Catalog:     fetcher,
		Credentials: creds,
		Outputs:     outputs,
		Tracker:     tracker,
		Ledger:      ledger,
	}
	closeFn := func() error {
		errs := []error{tracker.Close()}
		if ledger != nil {
			errs = append(errs, ledger.Close())
		}
		return errors.Join(errs...)
	}
	return comp, closeFn, nil
}

// EngineSettings maps the engine section onto per-invocation settings.
func EngineSettings(cfg *config.Config) ytdlp.Settings {
	return ytdlp.Settings{
		UserAgent:           cfg.Engine.UserAgent,
		Retries:             cfg.Engine.Retries,
		FragmentConcurrency: cfg.Engine.FragmentConcurrency,
		HTTPChunkSize:       cfg.Engine.HTTPChunkSize,
		SleepRequests:       cfg.Engine.SleepRequestsSeconds,
		FFmpegLocation:      ffmpegLocation(cfg.FFmpegBinary()),
	}
}

// ffmpegLocation resolves bare command names to absolute paths because the
// engine treats its ffmpeg location as a filesystem path. Unresolvable names
// leave the engine to its own PATH lookup.
func ffmpegLocation(binary string) string {
	if binary == "" || filepath.IsAbs(binary) {
		return binary
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return ""
	}
	return resolved
}

// DownloadSettings maps the policy and download sections onto orchestrator settings.
func DownloadSettings(cfg *config.Config) download.Settings {
	return download.Settings{
		Policy: selection.Policy{
			MinHeight:  cfg.Policy.MinHeight,
			VideoCodec: cfg.Policy.PreferredVideoCodec,
			AudioCodec: cfg.Policy.PreferredAudioCodec,
			Container:  cfg.Policy.MergeContainer,
		},
		AudioFormat:    cfg.Policy.AudioFormat,
		MergeContainer: cfg.Policy.MergeContainer,
		MaxConcurrent:  cfg.Download.MaxConcurrent,
	}
}
