package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tubefront/internal/logging"
	"tubefront/internal/services"
	"tubefront/internal/services/ytdlp"
)

// Prober runs a metadata-only engine call.
type Prober interface {
	Probe(ctx context.Context, url, cookieFile string) (*ytdlp.Info, error)
}

// Fetcher probes URLs and normalizes the result.
type Fetcher struct {
	prober      Prober
	audioFormat string
	logger      *slog.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(prober Prober, audioFormat string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		prober:      prober,
		audioFormat: audioFormat,
		logger:      logging.NewComponentLogger(logger, "catalog"),
	}
}

// Fetch probes url with the optional credential path. Failures wrap
// services.ErrCatalogFetch together with the engine classification
// (services.ErrNotFound, services.ErrNetwork, or services.ErrEngine).
func (f *Fetcher) Fetch(ctx context.Context, url, credential string) (*Catalog, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, services.Wrap(services.ErrInputInvalid, "catalog", "fetch", "URL required", nil)
	}
	logger := logging.WithContext(ctx, f.logger)

	started := time.Now()
	info, err := f.prober.Probe(ctx, url, credential)
	if err != nil {
		kind := "engine"
		switch {
		case errors.Is(err, services.ErrNotFound):
			kind = "not_found"
		case errors.Is(err, services.ErrNetwork):
			kind = "network"
		}
		logging.WarnWithContext(logger, "catalog probe failed", "catalog_fetch_failed",
			logging.String("url", url),
			logging.String("kind", kind),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no formats returned to caller"),
			logging.String(logging.FieldErrorHint, "verify the URL and credential bundle"),
		)
		return nil, services.Wrap(services.ErrCatalogFetch, "catalog", "fetch", "probe failed", err)
	}

	cat := Normalize(info, f.audioFormat)
	cat.URL = url
	logger.Info("catalog fetched",
		logging.String("url", url),
		logging.String("title", cat.Title),
		logging.Int("renditions", len(cat.Renditions)),
		logging.Int("raw_formats", len(info.Formats)),
		logging.Bool("authenticated", credential != ""),
		logging.Duration("elapsed", time.Since(started)),
	)
	return cat, nil
}
