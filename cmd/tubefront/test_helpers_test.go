package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tubefront/internal/catalog"
	"tubefront/internal/config"
	"tubefront/internal/credentials"
	"tubefront/internal/daemon"
	"tubefront/internal/daemonrun"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/services/ytdlp"
	"tubefront/internal/testsupport"
)

const testURL = "https://video.example/watch?v=abc123"

type stubEngine struct{}

func (stubEngine) Fetch(_ context.Context, req ytdlp.FetchRequest, onProgress func(ytdlp.Progress)) error {
	onProgress(ytdlp.Progress{Status: ytdlp.StatusDownloading, DownloadedBytes: 5, TotalBytes: 11})
	ext := req.MergeContainer
	if req.ExtractAudio {
		ext = req.AudioFormat
	}
	path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
	return os.WriteFile(path, []byte("media-bytes"), 0o644)
}

type stubCatalog struct{ err error }

func (c stubCatalog) Fetch(context.Context, string, string) (*catalog.Catalog, error) {
	if c.err != nil {
		return nil, c.err
	}
	height := 1080
	abr := 128.0
	return &catalog.Catalog{
		Title: "Sample Clip",
		Renditions: []catalog.Rendition{
			{ID: "137", Ext: "mp4", Height: &height, VCodec: "avc1.640028", ACodec: "none", VideoOnly: true},
			{ID: "140", Ext: "m4a", ABR: &abr, VCodec: "none", ACodec: "mp4a.40.2", AudioOnly: true},
			{ID: "140", Ext: "mp3", ABR: &abr, VCodec: "none", ACodec: "mp3", Note: "Extracted MP3", AudioOnly: true, Virtual: true},
		},
	}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config file for an isolated directory tree and
// replaces the pipeline builder with stubbed engine and catalog.
func setupCLITestEnv(t *testing.T, catalogErr error) *cliTestEnv {
	t.Helper()

	for _, key := range []string{"TUBEFRONT_API_TOKEN", "COOKIE_FILE", "REDIS_URL", "BROWSER_UA"} {
		t.Setenv(key, "")
	}
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	// Nothing listens here, so daemon-backed commands take their offline paths.
	cfg.API.Bind = "127.0.0.1:1"

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	original := buildComponents
	buildComponents = func(_ context.Context, cfg *config.Config, logger *slog.Logger) (daemon.Components, func() error, error) {
		return stubComponents(t, cfg, logger, catalogErr)
	}
	t.Cleanup(func() { buildComponents = original })

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func stubComponents(t *testing.T, cfg *config.Config, logger *slog.Logger, catalogErr error) (daemon.Components, func() error, error) {
	t.Helper()
	outputs, err := scratch.NewManager(cfg.Paths.ScratchDir, logger)
	if err != nil {
		return daemon.Components{}, nil, err
	}
	tracker := progress.NewMemory(time.Hour)
	ledger, err := jobs.Open(cfg)
	if err != nil {
		return daemon.Components{}, nil, err
	}
	creds := credentials.New(cfg.Credentials.Source, cfg.Credentials.WorkDir, cfg.Credentials.SharedCopy, logger)
	cat := stubCatalog{err: catalogErr}
	svc, err := download.NewService(stubEngine{}, creds, outputs, tracker, daemonrun.DownloadSettings(cfg), logger,
		download.WithCatalog(cat), download.WithLedger(ledger))
	if err != nil {
		_ = ledger.Close()
		return daemon.Components{}, nil, err
	}
	comp := daemon.Components{
		Downloads:   svc,
		Catalog:     cat,
		Credentials: creds,
		Outputs:     outputs,
		Tracker:     tracker,
		Ledger:      ledger,
	}
	return comp, ledger.Close, nil
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
scratch_dir = %q
state_dir = %q
log_dir = %q

[api]
bind = %q

[credentials]
source = %q
work_dir = %q

[jobs]
ledger_enabled = true
`,
		cfg.Paths.ScratchDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.API.Bind,
		cfg.Credentials.Source,
		cfg.Credentials.WorkDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
