package progress

import (
	"context"
	"fmt"

	"tubefront/internal/config"
)

// New builds the tracker selected by cfg.Progress.Backend.
func New(ctx context.Context, cfg *config.Config) (Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("progress: config required")
	}
	switch cfg.Progress.Backend {
	case config.ProgressBackendRedis:
		return NewRedis(ctx, cfg.Progress.RedisURL, cfg.ProgressTTL())
	case config.ProgressBackendMemory, "":
		return NewMemory(cfg.ProgressTTL()), nil
	default:
		return nil, fmt.Errorf("progress: unsupported backend %q", cfg.Progress.Backend)
	}
}
