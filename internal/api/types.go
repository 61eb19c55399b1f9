package api

import "tubefront/internal/deps"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatsRequest is the body of POST /formats.
type FormatsRequest struct {
	URL string `json:"url"`
}

// Format is one catalog entry as presented to clients.
type Format struct {
	FormatID  string   `json:"format_id"`
	Ext       string   `json:"ext"`
	Height    *int     `json:"height"`
	ABR       *float64 `json:"abr"`
	VCodec    string   `json:"vcodec"`
	ACodec    string   `json:"acodec"`
	Note      string   `json:"note"`
	Filesize  *int64   `json:"filesize,omitempty"`
	AudioOnly bool     `json:"audio_only"`
	VideoOnly bool     `json:"video_only"`
}

// FormatsResponse is the catalog for one URL.
type FormatsResponse struct {
	Formats   []Format `json:"formats"`
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  float64  `json:"duration,omitempty"`
	Uploader  string   `json:"uploader,omitempty"`
}

// DownloadRequest is the body of POST /download.
type DownloadRequest struct {
	URL        string `json:"url"`
	FormatID   string `json:"format_id"`
	AudioAsMP3 bool   `json:"audio_as_mp3"`
	JobID      string `json:"job_id,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobReservation is returned by POST /api/jobs.
type JobReservation struct {
	JobID string `json:"job_id"`
}

// Job is a ledger entry in transport form.
type Job struct {
	ID           string `json:"id"`
	URL          string `json:"url,omitempty"`
	FormatID     string `json:"format_id,omitempty"`
	AudioOnly    bool   `json:"audio_only"`
	Mode         string `json:"mode,omitempty"`
	Directive    string `json:"directive,omitempty"`
	Title        string `json:"title,omitempty"`
	Status       string `json:"status"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Bytes        int64  `json:"bytes"`
	Filename     string `json:"filename,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
}

// JobListResponse wraps ledger entries.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single ledger entry.
type JobResponse struct {
	Job Job `json:"job"`
}

// Progress is a progress snapshot in transport form.
type Progress struct {
	JobID           string  `json:"job_id"`
	Stage           string  `json:"stage"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Percent         float64 `json:"percent"`
	Filename        string  `json:"filename,omitempty"`
	Message         string  `json:"message,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// ActiveJob is an in-flight download.
type ActiveJob struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Stage     string `json:"stage"`
	StartedAt string `json:"started_at,omitempty"`
}

// JobSummary mirrors the ledger counts.
type JobSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CredentialStatus reports the cookie bundle source and working copy. The
// sec_/tmp_ keys are kept for existing /check-cookies consumers.
type CredentialStatus struct {
	SourcePath   string `json:"sec_path"`
	SourceExists bool   `json:"sec_exists"`
	SourceSize   int64  `json:"source_size,omitempty"`
	WorkingPath  string `json:"tmp_path"`
	WorkingExist bool   `json:"tmp_exists"`
	WorkDir      string `json:"work_dir"`
	SharedCopy   bool   `json:"shared_copy"`
	CheckedAt    string `json:"checked_at,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Bind         string             `json:"bind,omitempty"`
	JobsDBPath   string             `json:"jobs_db_path,omitempty"`
	LockFilePath string             `json:"lock_file_path"`
	ScratchDir   string             `json:"scratch_dir"`
	ScratchFiles int                `json:"scratch_files"`
	Progress     string             `json:"progress_backend"`
	Active       []ActiveJob        `json:"active"`
	Jobs         *JobSummary        `json:"jobs,omitempty"`
	Credentials  CredentialStatus   `json:"credentials"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// FromDependencies converts dependency checks to their API form.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		}
	}
	return out
}
