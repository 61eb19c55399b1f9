package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"tubefront/internal/catalog"
	"tubefront/internal/config"
	"tubefront/internal/credentials"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/selection"
	"tubefront/internal/services/ytdlp"
	"tubefront/internal/testsupport"
)

const testURL = "https://video.example/watch?v=abc123"

type stubEngine struct {
	write bool
	err   error
	delay time.Duration
}

func (e *stubEngine) Fetch(ctx context.Context, req ytdlp.FetchRequest, onProgress func(ytdlp.Progress)) error {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	onProgress(ytdlp.Progress{Status: ytdlp.StatusDownloading, DownloadedBytes: 5, TotalBytes: 11})
	if e.write {
		ext := req.MergeContainer
		if req.ExtractAudio {
			ext = req.AudioFormat
		}
		path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
		if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
			return err
		}
	}
	return e.err
}

type stubCatalog struct {
	mu          sync.Mutex
	cat         *catalog.Catalog
	err         error
	credentials []string
}

func (c *stubCatalog) Fetch(_ context.Context, _ string, credential string) (*catalog.Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials = append(c.credentials, credential)
	return c.cat, c.err
}

func (c *stubCatalog) lastCredential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.credentials) == 0 {
		return ""
	}
	return c.credentials[len(c.credentials)-1]
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func sampleCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Title:     "Sample Clip",
		Thumbnail: "https://img.example/t.jpg",
		Renditions: []catalog.Rendition{
			{ID: "137", Ext: "mp4", Height: intPtr(1080), VCodec: "avc1.640028", ACodec: "none", VideoOnly: true},
			{ID: "140", Ext: "m4a", ABR: floatPtr(128), VCodec: "none", ACodec: "mp4a.40.2", AudioOnly: true},
			{ID: "140", Ext: "mp3", ABR: floatPtr(128), VCodec: "none", ACodec: "mp3", Note: "Extracted MP3", AudioOnly: true, Virtual: true},
		},
	}
}

type fixture struct {
	cfg     *config.Config
	engine  *stubEngine
	catalog *stubCatalog
	outputs *scratch.Manager
	tracker *progress.Memory
	ledger  *jobs.Store
	daemon  *Daemon
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	logger := logging.NewNop()
	outputs, err := scratch.NewManager(cfg.Paths.ScratchDir, logger)
	if err != nil {
		t.Fatalf("scratch.NewManager: %v", err)
	}
	tracker := progress.NewMemory(time.Hour)
	ledger := testsupport.MustOpenLedger(t, cfg)
	creds := credentials.New(cfg.Credentials.Source, cfg.Credentials.WorkDir, cfg.Credentials.SharedCopy, logger)
	engine := &stubEngine{write: true}
	cat := &stubCatalog{cat: sampleCatalog()}

	svc, err := download.NewService(engine, creds, outputs, tracker, download.Settings{
		Policy: selection.Policy{
			MinHeight:  cfg.Policy.MinHeight,
			VideoCodec: cfg.Policy.PreferredVideoCodec,
			AudioCodec: cfg.Policy.PreferredAudioCodec,
			Container:  cfg.Policy.MergeContainer,
		},
		AudioFormat:    cfg.Policy.AudioFormat,
		MergeContainer: cfg.Policy.MergeContainer,
		MaxConcurrent:  2,
	}, logger, download.WithCatalog(cat), download.WithLedger(ledger))
	if err != nil {
		t.Fatalf("download.NewService: %v", err)
	}

	d, err := New(cfg, Components{
		Downloads:   svc,
		Catalog:     cat,
		Credentials: creds,
		Outputs:     outputs,
		Tracker:     tracker,
		Ledger:      ledger,
	}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)

	return &fixture{cfg: cfg, engine: engine, catalog: cat, outputs: outputs, tracker: tracker, ledger: ledger, daemon: d}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.daemon.api.handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) scratchFiles(t *testing.T) []scratch.FileInfo {
	t.Helper()
	files, err := f.outputs.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return files
}
