package api

import (
	"strings"
	"time"

	"tubefront/internal/catalog"
	"tubefront/internal/credentials"
	"tubefront/internal/download"
	"tubefront/internal/jobs"
	"tubefront/internal/progress"
)

// FromCatalog converts a probed catalog to the /formats payload. The virtual
// extraction entry is listed last, as the catalog orders it.
func FromCatalog(cat *catalog.Catalog) FormatsResponse {
	if cat == nil {
		return FormatsResponse{Formats: []Format{}}
	}
	formats := make([]Format, 0, len(cat.Renditions))
	for _, r := range cat.Renditions {
		formats = append(formats, Format{
			FormatID:  r.ID,
			Ext:       r.Ext,
			Height:    r.Height,
			ABR:       r.ABR,
			VCodec:    r.VCodec,
			ACodec:    r.ACodec,
			Note:      r.Note,
			Filesize:  r.Filesize,
			AudioOnly: r.AudioOnly,
			VideoOnly: r.VideoOnly,
		})
	}
	return FormatsResponse{
		Formats:   formats,
		Title:     cat.Title,
		Thumbnail: cat.Thumbnail,
		Duration:  cat.Duration,
		Uploader:  cat.Uploader,
	}
}

// Request converts the wire body to an orchestrator request.
func (r DownloadRequest) Request() download.Request {
	return download.Request{
		JobID:     strings.TrimSpace(r.JobID),
		URL:       strings.TrimSpace(r.URL),
		FormatID:  strings.TrimSpace(r.FormatID),
		AudioOnly: r.AudioAsMP3,
	}
}

// FromJobRecord converts a ledger row to its API representation.
func FromJobRecord(rec *jobs.Record) Job {
	if rec == nil {
		return Job{}
	}
	dto := Job{
		ID:           rec.ID,
		URL:          rec.URL,
		FormatID:     rec.FormatID,
		AudioOnly:    rec.AudioOnly,
		Mode:         rec.Mode,
		Directive:    rec.Directive,
		Title:        rec.Title,
		Status:       string(rec.Status),
		ErrorKind:    rec.ErrorKind,
		ErrorMessage: rec.ErrorMessage,
		Bytes:        rec.Bytes,
		Filename:     rec.Filename,
		CreatedAt:    formatTime(rec.CreatedAt),
		UpdatedAt:    formatTime(rec.UpdatedAt),
	}
	if rec.FinishedAt != nil {
		dto.FinishedAt = formatTime(*rec.FinishedAt)
	}
	return dto
}

// FromJobRecords converts a slice of ledger rows.
func FromJobRecords(recs []*jobs.Record) []Job {
	out := make([]Job, 0, len(recs))
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		out = append(out, FromJobRecord(rec))
	}
	return out
}

// FromJobSummary converts ledger counts.
func FromJobSummary(summary jobs.Summary) *JobSummary {
	return &JobSummary{
		Total:     summary.Total,
		Pending:   summary.Pending,
		InFlight:  summary.InFlight,
		Completed: summary.Completed,
		Failed:    summary.Failed,
	}
}

// FromSnapshot converts a progress snapshot.
func FromSnapshot(snap progress.Snapshot) Progress {
	return Progress{
		JobID:           snap.JobID,
		Stage:           string(snap.Stage),
		DownloadedBytes: snap.DownloadedBytes,
		TotalBytes:      snap.TotalBytes,
		Percent:         snap.Percent,
		Filename:        snap.Filename,
		Message:         snap.Message,
		UpdatedAt:       formatTime(snap.UpdatedAt),
	}
}

// FromActiveJobs converts the orchestrator's in-flight list.
func FromActiveJobs(active []download.ActiveJob) []ActiveJob {
	out := make([]ActiveJob, 0, len(active))
	for _, job := range active {
		out = append(out, ActiveJob{
			ID:        job.ID,
			URL:       job.URL,
			Stage:     string(job.Stage),
			StartedAt: formatTime(job.StartedAt),
		})
	}
	return out
}

// FromCredentialStatus converts the provisioner diagnostic.
func FromCredentialStatus(status credentials.Status) CredentialStatus {
	return CredentialStatus{
		SourcePath:   status.SourcePath,
		SourceExists: status.SourceExists,
		SourceSize:   status.SourceSize,
		WorkingPath:  status.SharedPath,
		WorkingExist: status.SharedExists,
		WorkDir:      status.WorkDir,
		SharedCopy:   status.SharedCopy,
		CheckedAt:    formatTime(status.CheckedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
