package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tubefront/internal/api"
	"tubefront/internal/config"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/logging"
	"tubefront/internal/services"
)

const (
	maxRequestBody  = 64 << 10
	defaultJobLimit = 50
	maxJobLimit     = 500
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	// writeTimeout is the write window granted once a download is ready.
	writeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logger,
		daemon: d,
	}

	limiter := newLimiter(cfg.API.RatePerSecond, cfg.API.RateBurst)
	token := strings.TrimSpace(cfg.API.Token)
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return requestIDMiddleware(authMiddleware(token, h))
	}
	limited := func(h http.HandlerFunc) http.HandlerFunc {
		return wrap(rateLimitMiddleware(limiter, h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/formats", limited(srv.handleFormats))
	mux.HandleFunc("/api/download", limited(srv.handleDownload))
	mux.HandleFunc("/api/jobs", wrap(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", wrap(srv.handleJob))
	mux.HandleFunc("/api/progress", wrap(srv.handleLatestProgress))
	mux.HandleFunc("/api/progress/", wrap(srv.handleJobProgress))
	mux.HandleFunc("/api/status", wrap(srv.handleStatus))
	mux.HandleFunc("/api/credentials", wrap(srv.handleCredentials))
	if cfg.API.LegacyRoutes {
		mux.HandleFunc("/formats", limited(srv.handleFormats))
		mux.HandleFunc("/download", limited(srv.handleDownload))
		mux.HandleFunc("/check-cookies", wrap(srv.handleCredentials))
	}

	// Validate keeps request_timeout_seconds above the engine budget. Time
	// spent queued for a slot is not bounded by it, so handleDownload grants a
	// fresh window once the job settles.
	writeTimeout := 30 * time.Second
	if t := time.Duration(cfg.API.RequestTimeoutSeconds) * time.Second; t > writeTimeout {
		writeTimeout = t
	}
	srv.writeTimeout = writeTimeout
	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	return s.server.Handler
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.log().Info("api server disabled; no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body api.FormatsRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		s.writeError(w, http.StatusBadRequest, "URL required")
		return
	}

	scope := "formats"
	if rid, ok := services.RequestIDFromContext(r.Context()); ok {
		scope = "formats-" + rid
	}
	lease := s.daemon.comp.Credentials.Provision(scope)
	defer lease.Release()

	cat, err := s.daemon.comp.Catalog.Fetch(r.Context(), url, lease.Path)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCatalog(cat))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body api.DownloadRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := body.Request()
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	w.Header().Set("X-Job-ID", req.JobID)
	ctx := services.WithJobID(r.Context(), req.JobID)

	streaming := false
	err := s.daemon.comp.Downloads.Serve(ctx, req, func(job *download.Job) error {
		file, err := os.Open(job.Path())
		if err != nil {
			return services.Wrap(services.ErrDownloadFailed, "api", "deliver", "open output", err)
		}
		defer file.Close()

		s.extendWriteDeadline(ctx, w)
		header := w.Header()
		header.Set("Content-Type", contentTypeFor(job.Output.Ext))
		header.Set("Content-Disposition", contentDisposition(job.Filename(), job.ASCIIFilename()))
		header.Set("Content-Length", strconv.FormatInt(job.Size, 10))
		w.WriteHeader(http.StatusOK)
		streaming = true

		if _, err := io.Copy(w, file); err != nil {
			return services.Wrap(services.ErrDownloadFailed, "api", "deliver", "stream interrupted", err)
		}
		return nil
	})
	if err == nil {
		return
	}
	if streaming {
		logging.WarnWithContext(logging.WithContext(ctx, s.log()), "attachment stream aborted", "delivery_aborted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "client received a truncated file"),
		)
		return
	}
	s.extendWriteDeadline(ctx, w)
	s.writeServiceError(w, r.WithContext(ctx), err)
}

func (s *apiServer) extendWriteDeadline(ctx context.Context, w http.ResponseWriter) {
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.WithContext(ctx, s.log()).Debug("extend write deadline failed", logging.Error(err))
	}
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	ledger := s.daemon.comp.Ledger
	switch r.Method {
	case http.MethodGet:
		if ledger == nil {
			s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: []api.Job{}})
			return
		}
		query := r.URL.Query()
		limit, _ := strconv.Atoi(query.Get("limit"))
		if limit <= 0 {
			limit = defaultJobLimit
		}
		if limit > maxJobLimit {
			limit = maxJobLimit
		}
		var statuses []jobs.Status
		for _, value := range query["status"] {
			if strings.TrimSpace(value) == "" {
				continue
			}
			status, ok := jobs.ParseStatus(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job status %q", value))
				return
			}
			statuses = append(statuses, status)
		}
		records, err := ledger.List(r.Context(), limit, statuses...)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobRecords(records)})
	case http.MethodPost:
		id := uuid.NewString()
		if ledger != nil {
			if _, err := ledger.Reserve(r.Context(), id); err != nil {
				s.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		w.Header().Set("X-Job-ID", id)
		s.writeJSON(w, http.StatusCreated, api.JobReservation{JobID: id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := trailingID(r.URL.Path, "/api/jobs/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if s.daemon.comp.Ledger == nil {
		s.writeError(w, http.StatusNotFound, "job ledger disabled")
		return
	}
	rec, err := s.daemon.comp.Ledger.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJobRecord(rec)})
}

func (s *apiServer) handleLatestProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap, ok, err := s.daemon.comp.Tracker.Latest(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no progress recorded")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := trailingID(r.URL.Path, "/api/progress/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "no progress for job")
		return
	}
	snap, found, err := s.daemon.comp.Tracker.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "no progress for job")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Bind:         status.Bind,
		JobsDBPath:   status.JobsDBPath,
		LockFilePath: status.LockFilePath,
		ScratchDir:   status.ScratchDir,
		ScratchFiles: status.ScratchFiles,
		Progress:     status.ProgressBackend,
		Active:       api.FromActiveJobs(status.Active),
		Credentials:  api.FromCredentialStatus(status.Credentials),
		Dependencies: api.FromDependencies(status.Dependencies),
	}
	if status.Jobs != nil {
		payload.Jobs = api.FromJobSummary(*status.Jobs)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCredentialStatus(s.daemon.comp.Credentials.Check()))
}

// statusFor maps service error markers to HTTP status codes. NotFound is
// checked before CatalogFetch because probe failures wrap both.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrNoViableFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCatalogFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.WithContext(r.Context(), s.log())
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, "request failed", "request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
	} else {
		logger.Info("request rejected",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String("reason", err.Error()),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.log())
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body required", services.ErrInputInvalid)
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body required", services.ErrInputInvalid)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", services.ErrInputInvalid, err)
	}
	return nil
}

func trailingID(path, prefix string) (string, bool) {
	id := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// mediaTypes covers the containers the engine produces; the system mime
// table is consulted for anything else.
var mediaTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"wav":  "audio/wav",
}

func contentTypeFor(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ext != "" {
		if ct := mime.TypeByExtension("." + ext); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// contentDisposition builds an attachment header carrying the ASCII fallback
// name and, when it differs, the UTF-8 name as an extended filename* value.
func contentDisposition(name, ascii string) string {
	header := mime.FormatMediaType("attachment", map[string]string{"filename": ascii})
	if header == "" {
		header = "attachment"
	}
	if name != ascii {
		if extended := mime.FormatMediaType("attachment", map[string]string{"filename": name}); extended != "" {
			header += strings.TrimPrefix(extended, "attachment")
		}
	}
	return header
}
