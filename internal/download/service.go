package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tubefront/internal/catalog"
	"tubefront/internal/credentials"
	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/notifications"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/selection"
	"tubefront/internal/services"
	"tubefront/internal/services/ytdlp"
)

// Engine performs the download and mux.
type Engine interface {
	Fetch(ctx context.Context, req ytdlp.FetchRequest, onProgress func(ytdlp.Progress)) error
}

// CatalogFetcher probes a URL for its renditions.
type CatalogFetcher interface {
	Fetch(ctx context.Context, url, credential string) (*catalog.Catalog, error)
}

// CredentialProvider hands out per-job credential leases.
type CredentialProvider interface {
	Provision(scope string) *credentials.Lease
}

// OutputManager allocates and releases scratch outputs.
type OutputManager interface {
	Allocate(ext string) (*scratch.Output, error)
	Release(out *scratch.Output) bool
}

// Ledger persists job records.
type Ledger interface {
	Save(ctx context.Context, rec *jobs.Record) error
}

// Notifier receives terminal job outcomes.
type Notifier interface {
	NotifyDownloadFailed(ctx context.Context, f notifications.Failure) error
	NotifyDownloadCompleted(ctx context.Context, c notifications.Completion) error
}

// Settings carries the negotiation and concurrency knobs.
type Settings struct {
	Policy         selection.Policy
	AudioFormat    string
	MergeContainer string
	MaxConcurrent  int
}

// Option configures the service.
type Option func(*Service)

// WithCatalog enables the probing stage. Without it jobs skip straight to
// the engine and attachments are named generically.
func WithCatalog(fetcher CatalogFetcher) Option {
	return func(s *Service) { s.catalog = fetcher }
}

// WithLedger records every job transition in ledger.
func WithLedger(ledger Ledger) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithNotifier sends failure and completion alerts through n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// Service runs download jobs.
type Service struct {
	engine   Engine
	catalog  CatalogFetcher
	creds    CredentialProvider
	outputs  OutputManager
	tracker  progress.Tracker
	ledger   Ledger
	notifier Notifier
	settings Settings
	logger   *slog.Logger

	slots chan struct{}

	mu     sync.Mutex
	active map[string]*activeEntry
}

type activeEntry struct {
	job   *Job
	stage progress.Stage
}

// NewService wires the orchestrator.
func NewService(engine Engine, creds CredentialProvider, outputs OutputManager, tracker progress.Tracker, settings Settings, logger *slog.Logger, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, errors.New("download: engine required")
	}
	if outputs == nil {
		return nil, errors.New("download: output manager required")
	}
	if tracker == nil {
		tracker = progress.NewMemory(time.Hour)
	}
	if settings.MaxConcurrent <= 0 {
		settings.MaxConcurrent = 1
	}
	if settings.AudioFormat == "" {
		settings.AudioFormat = "mp3"
	}
	if settings.MergeContainer == "" {
		settings.MergeContainer = "mp4"
	}
	s := &Service{
		engine:   engine,
		creds:    creds,
		outputs:  outputs,
		tracker:  tracker,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "download"),
		slots:    make(chan struct{}, settings.MaxConcurrent),
		active:   make(map[string]*activeEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Serve runs the job and hands the verified output to deliver. The output is
// released exactly once when Serve returns, whether deliver succeeds, fails,
// or panics. A panic in deliver is converted into an error.
func (s *Service) Serve(ctx context.Context, req Request, deliver func(*Job) error) (err error) {
	job, err := s.Run(ctx, req)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrDownloadFailed, "download", "deliver", fmt.Sprintf("delivery panicked: %v", r), nil)
		}
		s.Finish(ctx, job, err)
	}()
	return deliver(job)
}

// Run executes the job up to a verified output file. On success the caller
// owns the job and must call Finish; on failure every resource is already
// released.
func (s *Service) Run(ctx context.Context, req Request) (*Job, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.JobID = strings.TrimSpace(req.JobID)
	job := &Job{
		ID:        req.JobID,
		Request:   req,
		Intent:    selection.ParseIntent(req.FormatID, req.AudioOnly),
		StartedAt: time.Now(),
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = services.WithJobID(ctx, job.ID)

	if err := validateURL(req.URL); err != nil {
		s.recordFailure(ctx, job, err)
		return nil, err
	}
	if err := job.Intent.Validate(); err != nil {
		s.recordFailure(ctx, job, err)
		return nil, err
	}

	s.track(job)
	s.record(ctx, job, progress.Snapshot{Stage: progress.StageQueued, Percent: -1}, jobs.StatusPending, nil)

	if err := s.acquire(ctx); err != nil {
		err = services.Wrap(services.ErrDownloadFailed, "download", "queue", "cancelled while waiting for a worker slot", err)
		s.fail(ctx, job, err)
		return nil, err
	}
	defer s.releaseSlot()

	if err := s.execute(ctx, job); err != nil {
		s.fail(ctx, job, err)
		return nil, err
	}
	s.record(ctx, job, progress.Snapshot{
		Stage:           progress.StageFinished,
		DownloadedBytes: job.Size,
		TotalBytes:      job.Size,
		Percent:         100,
		Filename:        job.Filename(),
		Message:         "ready",
	}, jobs.StatusSending, nil)
	return job, nil
}

// Finish releases the job's output and records the terminal outcome. Only
// the first call for a job has any effect on the output.
func (s *Service) Finish(ctx context.Context, job *Job, deliverErr error) {
	if job == nil {
		return
	}
	ctx = services.WithJobID(ctx, job.ID)
	if deliverErr != nil {
		s.fail(ctx, job, deliverErr)
		return
	}
	s.cleanup(job)
	s.record(ctx, job, progress.Snapshot{
		Stage:           progress.StageFinished,
		DownloadedBytes: job.Size,
		TotalBytes:      job.Size,
		Percent:         100,
		Filename:        job.Filename(),
		Message:         "delivered",
	}, jobs.StatusCompleted, nil)
	logging.WithContext(ctx, s.logger).Info("download delivered",
		logging.String("filename", job.Filename()),
		logging.Int64("bytes", job.Size),
		logging.Duration("elapsed", time.Since(job.StartedAt)),
		logging.String(logging.FieldEventType, "download_completed"),
	)
	completion := notifications.Completion{
		JobID:    job.ID,
		Title:    job.Title(),
		Filename: job.Filename(),
		Bytes:    job.Size,
		Elapsed:  time.Since(job.StartedAt),
	}
	s.notify(ctx, "completed", func(nctx context.Context) error {
		return s.notifier.NotifyDownloadCompleted(nctx, completion)
	})
}

// Active lists in-flight jobs ordered by start time.
func (s *Service) Active() []ActiveJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActiveJob, 0, len(s.active))
	for _, e := range s.active {
		out = append(out, ActiveJob{ID: e.job.ID, URL: e.job.Request.URL, Stage: e.stage, StartedAt: e.job.StartedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Tracker exposes the progress tracker jobs report to.
func (s *Service) Tracker() progress.Tracker { return s.tracker }

func (s *Service) execute(ctx context.Context, job *Job) error {
	logger := logging.WithContext(ctx, s.logger)

	job.lease = s.provision(job.ID)
	defer job.lease.Release()

	if s.catalog != nil {
		s.setStage(ctx, job, progress.StageProbing, jobs.StatusProbing)
		cat, err := s.catalog.Fetch(services.WithStage(ctx, "probing"), job.Request.URL, job.lease.Path)
		if err != nil {
			return err
		}
		job.Catalog = cat
	}
	if missing := job.UnlistedIDs(); len(missing) > 0 {
		logging.WarnWithContext(logger, "requested format not in catalog", "format_unlisted",
			logging.String("format_id", job.Intent.FormatID),
			logging.String("unlisted", strings.Join(missing, "+")),
			logging.String(logging.FieldImpact, "engine fallbacks choose the rendition"),
		)
	}
	if job.Intent.Mode() == selection.ModeAudio {
		if entry, ok := job.Catalog.Virtual(); ok {
			logger.Debug("audio extraction advertised",
				logging.String("ext", entry.Ext),
				logging.String("note", entry.Note),
			)
		}
	}

	var renditions []catalog.Rendition
	if job.Catalog != nil {
		renditions = job.Catalog.Renditions
	}
	directive, resolution, err := selection.Plan(job.Intent, renditions, s.settings.Policy)
	if err != nil {
		return err
	}
	job.Directive = directive
	job.Resolution = resolution
	logger.Info("format negotiated",
		logging.String("mode", string(directive.Mode)),
		logging.String("directive", directive.Expression()),
		logging.Int("tier", resolution.Tier),
		logging.String("matched", strings.Join(resolution.IDs(), "+")),
		logging.Bool("extract_audio", directive.ExtractAudio),
		logging.Bool("authenticated", job.lease.Authenticated()),
	)

	ext := s.settings.MergeContainer
	if directive.ExtractAudio {
		ext = s.settings.AudioFormat
	}
	out, err := s.outputs.Allocate(ext)
	if err != nil {
		return err
	}
	job.Output = out

	s.setStage(ctx, job, progress.StageDownloading, jobs.StatusDownloading)
	fetch := ytdlp.FetchRequest{
		URL:            job.Request.URL,
		Format:         directive.Expression(),
		OutputTemplate: out.Template(),
		CookieFile:     job.lease.Path,
		ExtractAudio:   directive.ExtractAudio,
	}
	if directive.ExtractAudio {
		fetch.AudioFormat = s.settings.AudioFormat
	} else {
		fetch.MergeContainer = s.settings.MergeContainer
	}

	sink := s.newSink(ctx, job)
	if err := s.engine.Fetch(services.WithStage(ctx, "downloading"), fetch, sink.handle); err != nil {
		return fmt.Errorf("%w: %s", services.ErrDownloadFailed, ytdlp.Diagnostic(err))
	}

	info, err := os.Stat(out.Path)
	if err != nil || !info.Mode().IsRegular() {
		if err == nil {
			err = errors.New("not a regular file")
		}
		logging.WarnWithContext(logger, "engine exited without producing output", "download_output_missing",
			logging.String("path", out.Path),
			logging.String("directive", directive.Expression()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "caller receives a download failure"),
			logging.String(logging.FieldErrorHint, "a merge or post-processing step likely failed; check ffmpeg"),
		)
		return fmt.Errorf("%w: output file was not produced", services.ErrDownloadFailed)
	}
	job.Size = info.Size()
	return nil
}

func (s *Service) provision(scope string) *credentials.Lease {
	if s.creds == nil {
		return &credentials.Lease{Origin: credentials.OriginNone}
	}
	lease := s.creds.Provision(scope)
	if lease == nil {
		return &credentials.Lease{Origin: credentials.OriginNone}
	}
	return lease
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseSlot() { <-s.slots }

func (s *Service) fail(ctx context.Context, job *Job, err error) {
	s.cleanup(job)
	s.recordFailure(ctx, job, err)
}

// cleanup releases the output and credential lease and forgets the job.
func (s *Service) cleanup(job *Job) {
	if job.Output != nil {
		s.outputs.Release(job.Output)
	}
	if job.lease != nil {
		job.lease.Release()
	}
	s.mu.Lock()
	delete(s.active, job.ID)
	s.mu.Unlock()
}

func (s *Service) recordFailure(ctx context.Context, job *Job, err error) {
	s.record(ctx, job, progress.Snapshot{
		Stage:   progress.StageFailed,
		Percent: -1,
		Message: err.Error(),
	}, jobs.StatusFailed, err)

	logger := logging.WithContext(ctx, s.logger)
	if errors.Is(err, services.ErrInputInvalid) {
		logger.Info("download rejected", logging.Error(err), logging.String(logging.FieldEventType, "download_rejected"))
		return
	}
	logging.ErrorWithContext(logger, "download failed", "download_failed",
		logging.String("kind", services.FailureKind(err)),
		logging.String("url", job.Request.URL),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the engine diagnostic in the error message"),
	)
	failure := notifications.Failure{
		JobID: job.ID,
		URL:   job.Request.URL,
		Title: job.Title(),
		Kind:  services.FailureKind(err),
		Err:   err,
	}
	s.notify(ctx, "failed", func(nctx context.Context) error {
		return s.notifier.NotifyDownloadFailed(nctx, failure)
	})
}

// notify sends an alert off the request path. The request context may
// already be cancelled when the caller disconnects, so only its values are
// kept.
func (s *Service) notify(ctx context.Context, outcome string, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, s.logger)
	go func() {
		if err := send(nctx); err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.String("outcome", outcome),
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator alert not delivered"),
			)
		}
	}()
}

func (s *Service) track(job *Job) {
	s.mu.Lock()
	s.active[job.ID] = &activeEntry{job: job, stage: progress.StageQueued}
	s.mu.Unlock()
}

func (s *Service) setStage(ctx context.Context, job *Job, stage progress.Stage, status jobs.Status) {
	s.record(ctx, job, progress.Snapshot{Stage: stage, Percent: -1}, status, nil)
}

// record writes the snapshot to the tracker and, when status is set, the
// ledger. Storage failures are logged; they never fail the job.
func (s *Service) record(ctx context.Context, job *Job, snap progress.Snapshot, status jobs.Status, jobErr error) {
	snap.JobID = job.ID
	snap.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	if e, ok := s.active[job.ID]; ok {
		e.stage = snap.Stage
	}
	s.mu.Unlock()

	logger := logging.WithContext(ctx, s.logger)
	if err := s.tracker.Record(ctx, snap); err != nil {
		logging.WarnWithContext(logger, "progress snapshot not stored", "progress_store_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "progress polls show stale data"),
			logging.String(logging.FieldErrorHint, "check the progress backend"),
		)
	}
	if s.ledger == nil || status == "" {
		return
	}
	rec := job.record(status)
	if jobErr != nil {
		rec.ErrorKind = services.FailureKind(jobErr)
		rec.ErrorMessage = jobErr.Error()
	}
	if err := s.ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		logging.WarnWithContext(logger, "job ledger update failed", "ledger_store_failed",
			logging.String("status", string(status)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "job history is incomplete"),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and disk space"),
		)
	}
}

func (j *Job) record(status jobs.Status) *jobs.Record {
	rec := &jobs.Record{
		ID:        j.ID,
		URL:       j.Request.URL,
		FormatID:  j.Request.FormatID,
		AudioOnly: j.Intent.AudioOnly,
		Mode:      string(j.Intent.Mode()),
		Directive: j.Directive.Expression(),
		Title:     j.Title(),
		Status:    status,
		Bytes:     j.Size,
		CreatedAt: j.StartedAt,
	}
	if j.Output != nil {
		rec.Filename = j.Filename()
	}
	return rec
}

func validateURL(raw string) error {
	if raw == "" {
		return services.Wrap(services.ErrInputInvalid, "download", "validate", "URL required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return services.Wrap(services.ErrInputInvalid, "download", "validate", "URL must be an absolute http(s) link", nil)
	}
	return nil
}
