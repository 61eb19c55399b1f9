package download

import (
	"strings"
	"time"

	"tubefront/internal/catalog"
	"tubefront/internal/credentials"
	"tubefront/internal/progress"
	"tubefront/internal/scratch"
	"tubefront/internal/selection"
	"tubefront/internal/textutil"
)

// Request is one caller's download ask.
type Request struct {
	// JobID is optional; callers that reserved an id to poll progress pass it here.
	JobID     string
	URL       string
	FormatID  string
	AudioOnly bool
}

// Job is the runtime state of one download.
type Job struct {
	ID         string
	Request    Request
	Intent     selection.Intent
	Directive  selection.Directive
	Resolution selection.Resolution
	Catalog    *catalog.Catalog
	Output     *scratch.Output
	Size       int64
	StartedAt  time.Time

	lease *credentials.Lease
}

// Path returns the on-disk output path, or "" before allocation.
func (j *Job) Path() string {
	if j == nil || j.Output == nil {
		return ""
	}
	return j.Output.Path
}

// Title returns the probed media title if known.
func (j *Job) Title() string {
	if j == nil || j.Catalog == nil {
		return ""
	}
	return j.Catalog.Title
}

// Filename returns the attachment name presented to the caller.
func (j *Job) Filename() string {
	ext := ""
	if j != nil && j.Output != nil {
		ext = j.Output.Ext
	}
	base := textutil.SanitizeFileName(j.Title())
	if base == "" {
		base = "download"
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ASCIIFilename returns an ASCII-only variant of Filename for legacy clients.
func (j *Job) ASCIIFilename() string {
	name := textutil.ASCIIFileName(j.Filename())
	if strings.Trim(name, "_. ") == "" {
		return "download"
	}
	return name
}

// UnlistedIDs returns the requested rendition ids the fetched catalog does not
// advertise. They are still handed to the engine, whose fallbacks decide.
func (j *Job) UnlistedIDs() []string {
	if j == nil || j.Catalog == nil || j.Intent.FormatID == "" {
		return nil
	}
	var missing []string
	for _, id := range strings.Split(j.Intent.FormatID, "+") {
		id = strings.TrimSpace(id)
		if _, ok := j.Catalog.Find(id); !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// ActiveJob summarizes an in-flight job for status reporting.
type ActiveJob struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Stage     progress.Stage `json:"stage"`
	StartedAt time.Time      `json:"started_at"`
}
