package download_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tubefront/internal/catalog"
	"tubefront/internal/config"
	"tubefront/internal/credentials"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/notifications"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/selection"
	"tubefront/internal/services"
	"tubefront/internal/services/ytdlp"
	"tubefront/internal/testsupport"
)

const testURL = "https://video.example/watch?v=abc123"

type stubEngine struct {
	mu       sync.Mutex
	requests []ytdlp.FetchRequest
	write    bool
	err      error
	events   []ytdlp.Progress
	block    chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (e *stubEngine) Fetch(ctx context.Context, req ytdlp.FetchRequest, onProgress func(ytdlp.Progress)) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		prev := e.maxInFlight.Load()
		if n <= prev || e.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, ev := range e.events {
		onProgress(ev)
	}
	if e.write {
		ext := req.MergeContainer
		if req.ExtractAudio {
			ext = req.AudioFormat
		}
		path := strings.Replace(req.OutputTemplate, "%(ext)s", ext, 1)
		if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
			return err
		}
		// Leftover fragment that release must also remove.
		_ = os.WriteFile(strings.Replace(req.OutputTemplate, "%(ext)s", "f137.mp4.part", 1), []byte("x"), 0o644)
	}
	return e.err
}

func (e *stubEngine) lastRequest(t *testing.T) ytdlp.FetchRequest {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		t.Fatal("engine was not invoked")
	}
	return e.requests[len(e.requests)-1]
}

func (e *stubEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

type stubCatalog struct {
	cat *catalog.Catalog
	err error
}

func (c *stubCatalog) Fetch(context.Context, string, string) (*catalog.Catalog, error) {
	return c.cat, c.err
}

type countingCatalog struct {
	stubCatalog
	calls atomic.Int32
}

func (c *countingCatalog) Fetch(ctx context.Context, url, cred string) (*catalog.Catalog, error) {
	c.calls.Add(1)
	return c.stubCatalog.Fetch(ctx, url, cred)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func sampleCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Title: "Sample Clip",
		Renditions: []catalog.Rendition{
			{ID: "137", Ext: "mp4", Height: intPtr(1080), VCodec: "avc1.640028", ACodec: "none", VideoOnly: true},
			{ID: "140", Ext: "m4a", ABR: floatPtr(128), VCodec: "none", ACodec: "mp4a.40.2", AudioOnly: true},
		},
	}
}

type harness struct {
	cfg     *config.Config
	engine  *stubEngine
	outputs *scratch.Manager
	tracker *progress.Memory
	ledger  *jobs.Store
	service *download.Service
}

type stubNotifier struct {
	failed    chan notifications.Failure
	completed chan notifications.Completion
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{
		failed:    make(chan notifications.Failure, 4),
		completed: make(chan notifications.Completion, 4),
	}
}

func (n *stubNotifier) NotifyDownloadFailed(_ context.Context, f notifications.Failure) error {
	n.failed <- f
	return nil
}

func (n *stubNotifier) NotifyDownloadCompleted(_ context.Context, c notifications.Completion) error {
	n.completed <- c
	return nil
}

func newHarness(t *testing.T, engine *stubEngine, cat download.CatalogFetcher, maxConcurrent int, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	return newHarnessWith(t, engine, cat, maxConcurrent, nil, opts...)
}

func newHarnessWith(t *testing.T, engine *stubEngine, cat download.CatalogFetcher, maxConcurrent int, extra []download.Option, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	outputs, err := scratch.NewManager(cfg.Paths.ScratchDir, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tracker := progress.NewMemory(time.Hour)
	ledger := testsupport.MustOpenLedger(t, cfg)
	creds := credentials.New(cfg.Credentials.Source, cfg.Credentials.WorkDir, false, logging.NewNop())

	svcOpts := []download.Option{download.WithLedger(ledger)}
	if cat != nil {
		svcOpts = append(svcOpts, download.WithCatalog(cat))
	}
	svcOpts = append(svcOpts, extra...)
	svc, err := download.NewService(engine, creds, outputs, tracker, download.Settings{
		Policy: selection.Policy{
			MinHeight:  cfg.Policy.MinHeight,
			VideoCodec: cfg.Policy.PreferredVideoCodec,
			AudioCodec: cfg.Policy.PreferredAudioCodec,
			Container:  cfg.Policy.MergeContainer,
		},
		AudioFormat:    cfg.Policy.AudioFormat,
		MergeContainer: cfg.Policy.MergeContainer,
		MaxConcurrent:  maxConcurrent,
	}, logging.NewNop(), svcOpts...)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{cfg: cfg, engine: engine, outputs: outputs, tracker: tracker, ledger: ledger, service: svc}
}

func (h *harness) scratchFiles(t *testing.T) []scratch.FileInfo {
	t.Helper()
	files, err := h.outputs.List()
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestServeDeliversAndReleases(t *testing.T) {
	engine := &stubEngine{write: true, events: []ytdlp.Progress{
		{Status: ytdlp.StatusDownloading, DownloadedBytes: 50, TotalBytes: 100, Filename: "/scratch/x.f137.mp4"},
		{Status: ytdlp.StatusPostProcessing},
	}}
	h := newHarness(t, engine, &stubCatalog{cat: sampleCatalog()}, 2, testsupport.WithCredentialSource("# Netscape HTTP Cookie File\n"))

	var delivered []byte
	var jobID, path string
	err := h.service.Serve(context.Background(), download.Request{JobID: "job-1", URL: testURL}, func(job *download.Job) error {
		jobID, path = job.ID, job.Path()
		if job.Filename() != "Sample Clip.mp4" {
			t.Errorf("unexpected attachment name %q", job.Filename())
		}
		snap, ok, _ := h.tracker.Get(context.Background(), job.ID)
		if !ok || snap.Stage != progress.StageFinished || snap.Filename != "Sample Clip.mp4" {
			t.Errorf("expected finished snapshot before delivery, got %+v", snap)
		}
		var readErr error
		delivered, readErr = os.ReadFile(job.Path())
		return readErr
	})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if string(delivered) != "media-bytes" || jobID != "job-1" {
		t.Fatalf("unexpected delivery %q for %s", delivered, jobID)
	}
	if testsupport.Exists(path) {
		t.Fatal("output should be released after delivery")
	}
	if files := h.scratchFiles(t); len(files) != 0 {
		t.Fatalf("scratch should be empty, found %v", files)
	}

	req := engine.lastRequest(t)
	if req.Format != "bestvideo[height>=720][vcodec^=avc1]+bestaudio[acodec^=mp4a]/best[ext=mp4]/bestvideo+bestaudio/best" {
		t.Fatalf("unexpected format expression %q", req.Format)
	}
	if req.MergeContainer != "mp4" || req.ExtractAudio {
		t.Fatalf("unexpected post-processing %+v", req)
	}
	if req.CookieFile == "" || req.CookieFile == h.cfg.Credentials.Source {
		t.Fatalf("expected a per-job working copy, got %q", req.CookieFile)
	}
	if testsupport.Exists(req.CookieFile) {
		t.Fatal("credential working copy should be removed with the job")
	}

	rec, err := h.ledger.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != jobs.StatusCompleted || rec.Title != "Sample Clip" || rec.Bytes != int64(len("media-bytes")) {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
	if len(h.service.Active()) != 0 {
		t.Fatal("no jobs should remain active")
	}
}

func TestMissingOutputIsFailure(t *testing.T) {
	engine := &stubEngine{}
	h := newHarness(t, engine, nil, 1)

	delivered := false
	err := h.service.Serve(context.Background(), download.Request{JobID: "job-d", URL: testURL, FormatID: "137"}, func(*download.Job) error {
		delivered = true
		return nil
	})
	if !errors.Is(err, services.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if delivered {
		t.Fatal("deliver must not run without an output file")
	}
	if files := h.scratchFiles(t); len(files) != 0 {
		t.Fatalf("scratch should be empty, found %v", files)
	}
	snap, ok, _ := h.tracker.Get(context.Background(), "job-d")
	if !ok || snap.Stage != progress.StageFailed {
		t.Fatalf("expected failed snapshot, got %+v", snap)
	}
	if got := engine.lastRequest(t).Format; got != "137+bestaudio/137/best" {
		t.Fatalf("unexpected explicit-id expression %q", got)
	}
}

func TestEngineErrorCarriesDiagnostic(t *testing.T) {
	engine := &stubEngine{write: true, err: &ytdlp.EngineError{ExitCode: 1, Diagnostic: "ERROR: [youtube] abc123: HTTP Error 403: Forbidden"}}
	h := newHarness(t, engine, nil, 1)

	_, err := h.service.Run(context.Background(), download.Request{URL: testURL})
	if !errors.Is(err, services.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "HTTP Error 403: Forbidden") {
		t.Fatalf("diagnostic lost: %v", err)
	}
	if files := h.scratchFiles(t); len(files) != 0 {
		t.Fatalf("partial output should be released, found %v", files)
	}
	failed, _ := h.ledger.List(context.Background(), 0, jobs.StatusFailed)
	if len(failed) != 1 || failed[0].ErrorKind != "download_failed" {
		t.Fatalf("unexpected ledger state %+v", failed)
	}
}

func TestDeliverPanicReleases(t *testing.T) {
	h := newHarness(t, &stubEngine{write: true}, nil, 1)

	var path string
	err := h.service.Serve(context.Background(), download.Request{URL: testURL}, func(job *download.Job) error {
		path = job.Path()
		panic("client went away")
	})
	if err == nil || !strings.Contains(err.Error(), "client went away") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}
	if path == "" || testsupport.Exists(path) {
		t.Fatal("output must be released after a delivery panic")
	}
}

func TestDeliverErrorReleases(t *testing.T) {
	h := newHarness(t, &stubEngine{write: true}, nil, 1)
	sendErr := errors.New("broken pipe")

	err := h.service.Serve(context.Background(), download.Request{JobID: "job-e", URL: testURL}, func(*download.Job) error {
		return sendErr
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if files := h.scratchFiles(t); len(files) != 0 {
		t.Fatalf("scratch should be empty, found %v", files)
	}
	rec, _ := h.ledger.Get(context.Background(), "job-e")
	if rec == nil || rec.Status != jobs.StatusFailed {
		t.Fatalf("unexpected ledger record %+v", rec)
	}
}

func TestRejectsInvalidURL(t *testing.T) {
	engine := &stubEngine{write: true}
	h := newHarness(t, engine, nil, 1)

	for _, raw := range []string{"", "   ", "ftp://video.example/x", "not a url", "/relative/path"} {
		_, err := h.service.Run(context.Background(), download.Request{URL: raw})
		if !errors.Is(err, services.ErrInputInvalid) {
			t.Fatalf("%q: expected ErrInputInvalid, got %v", raw, err)
		}
	}
	if engine.calls() != 0 {
		t.Fatal("engine must not run for invalid input")
	}
}

func TestRejectsMalformedFormatID(t *testing.T) {
	engine := &stubEngine{write: true}
	cat := &countingCatalog{stubCatalog: stubCatalog{cat: sampleCatalog()}}
	h := newHarness(t, engine, cat, 1)

	for _, id := range []string{"137+", "+140", "137/18", "137 140"} {
		_, err := h.service.Run(context.Background(), download.Request{URL: testURL, FormatID: id})
		if !errors.Is(err, services.ErrInputInvalid) {
			t.Fatalf("%q: expected ErrInputInvalid, got %v", id, err)
		}
	}
	if engine.calls() != 0 || cat.calls.Load() != 0 {
		t.Fatalf("engine (%d) and catalog (%d) must not run for malformed ids", engine.calls(), cat.calls.Load())
	}
	if len(h.service.Active()) != 0 {
		t.Fatal("rejected jobs must not be tracked as active")
	}
}

func TestAudioIntentExtracts(t *testing.T) {
	engine := &stubEngine{write: true}
	h := newHarness(t, engine, &stubCatalog{cat: sampleCatalog()}, 1)

	job, err := h.service.Run(context.Background(), download.Request{URL: testURL, FormatID: "140.mp3"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer h.service.Finish(context.Background(), job, nil)

	req := engine.lastRequest(t)
	if !req.ExtractAudio || req.AudioFormat != "mp3" || req.MergeContainer != "" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Format != "140/bestaudio[acodec^=mp4a]/bestaudio" {
		t.Fatalf("unexpected expression %q", req.Format)
	}
	if job.Output.Ext != "mp3" || job.Filename() != "Sample Clip.mp3" {
		t.Fatalf("unexpected output %+v", job.Output)
	}
	if job.Resolution.Audio == nil || job.Resolution.Audio.ID != "140" {
		t.Fatalf("expected local resolution to pick 140, got %+v", job.Resolution)
	}
}

func TestCatalogFailureStopsJob(t *testing.T) {
	engine := &stubEngine{write: true}
	probeErr := services.Wrap(services.ErrCatalogFetch, "catalog", "fetch", "probe failed", services.ErrNotFound)
	h := newHarness(t, engine, &stubCatalog{err: probeErr}, 1)

	_, err := h.service.Run(context.Background(), download.Request{URL: testURL})
	if !errors.Is(err, services.ErrCatalogFetch) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if engine.calls() != 0 {
		t.Fatal("engine fetch must not run after a failed probe")
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	h := newHarness(t, &stubEngine{write: true}, nil, 1)
	job, err := h.service.Run(context.Background(), download.Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	h.service.Finish(context.Background(), job, nil)
	h.service.Finish(context.Background(), job, nil)
	if h.outputs.Release(job.Output) {
		t.Fatal("output should already be released")
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	engine := &stubEngine{write: true, block: make(chan struct{})}
	h := newHarness(t, engine, nil, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.service.Serve(context.Background(), download.Request{URL: testURL}, func(*download.Job) error { return nil })
		}()
	}

	deadline := time.After(5 * time.Second)
	for engine.calls() < 1 {
		select {
		case <-deadline:
			t.Fatal("engine never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(engine.block)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	}
	if engine.maxInFlight.Load() != 1 {
		t.Fatalf("expected at most one engine process, saw %d", engine.maxInFlight.Load())
	}
}

func TestQueuedJobHonorsCancellation(t *testing.T) {
	engine := &stubEngine{write: true, block: make(chan struct{})}
	h := newHarness(t, engine, nil, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.service.Run(context.Background(), download.Request{URL: testURL})
		done <- err
	}()
	for engine.calls() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.service.Run(ctx, download.Request{URL: testURL}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation while queued, got %v", err)
	}
	close(engine.block)
	if err := <-done; err != nil {
		t.Fatalf("first job failed: %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := download.NewService(nil, nil, &scratch.Manager{}, nil, download.Settings{}, nil); err == nil {
		t.Fatal("expected error without engine")
	}
	if _, err := download.NewService(&stubEngine{}, nil, nil, nil, download.Settings{}, nil); err == nil {
		t.Fatal("expected error without output manager")
	}
}

func TestNotifierReceivesOutcomes(t *testing.T) {
	notifier := newStubNotifier()
	engine := &stubEngine{write: true}
	h := newHarnessWith(t, engine, &stubCatalog{cat: sampleCatalog()}, 1, []download.Option{download.WithNotifier(notifier)})

	err := h.service.Serve(context.Background(), download.Request{JobID: "job-ok", URL: testURL}, func(*download.Job) error { return nil })
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	select {
	case c := <-notifier.completed:
		if c.JobID != "job-ok" || c.Filename != "Sample Clip.mp4" || c.Bytes != int64(len("media-bytes")) {
			t.Fatalf("unexpected completion %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion notification not sent")
	}

	engine.err = &ytdlp.EngineError{ExitCode: 1, Diagnostic: "ERROR: boom"}
	if _, err := h.service.Run(context.Background(), download.Request{JobID: "job-bad", URL: testURL}); err == nil {
		t.Fatal("expected engine failure")
	}
	select {
	case f := <-notifier.failed:
		if f.JobID != "job-bad" || f.Kind != "download_failed" || f.Title != "Sample Clip" {
			t.Fatalf("unexpected failure %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failure notification not sent")
	}

	// Rejected input is the caller's problem, not the operator's.
	if _, err := h.service.Run(context.Background(), download.Request{URL: "not a url"}); err == nil {
		t.Fatal("expected input error")
	}
	select {
	case f := <-notifier.failed:
		t.Fatalf("input error should not notify, got %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnlistedFormatIDsAreReported(t *testing.T) {
	tests := []struct {
		name     string
		formatID string
		want     string
	}{
		{"listed single", "137", ""},
		{"listed pair", "137+140", ""},
		{"unlisted video", "999+140", "999"},
		{"unlisted audio extraction", "251.mp3", "251"},
		{"policy default", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{write: true}
			h := newHarness(t, engine, &stubCatalog{cat: sampleCatalog()}, 1)

			job, err := h.service.Run(context.Background(), download.Request{URL: testURL, FormatID: tt.formatID})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			defer h.service.Finish(context.Background(), job, nil)

			if got := strings.Join(job.UnlistedIDs(), "+"); got != tt.want {
				t.Fatalf("UnlistedIDs = %q, want %q", got, tt.want)
			}
		})
	}
}
