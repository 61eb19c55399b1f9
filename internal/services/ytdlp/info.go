package ytdlp

import "time"

// Info is the subset of the engine's single-video JSON document the service reads.
type Info struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Uploader   string   `json:"uploader"`
	Thumbnail  string   `json:"thumbnail"`
	Duration   float64  `json:"duration"`
	WebpageURL string   `json:"webpage_url"`
	Formats    []Format `json:"formats"`
}

// Format is one raw rendition as reported by the engine. Numeric fields are
// pointers because the engine emits null for unknown values.
type Format struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *int     `json:"height"`
	Width          *int     `json:"width"`
	ABR            *float64 `json:"abr"`
	TBR            *float64 `json:"tbr"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	FormatNote     string   `json:"format_note"`
	Protocol       string   `json:"protocol"`
	Filesize       *int64   `json:"filesize"`
	FilesizeApprox *int64   `json:"filesize_approx"`
}

// Progress is one engine progress event.
type Progress struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64
	FragmentIndex   int
	FragmentCount   int
	Filename        string
	ETA             time.Duration
}

// Engine progress statuses.
const (
	StatusStarting       = "starting"
	StatusDownloading    = "downloading"
	StatusPostProcessing = "post_processing"
	StatusFinished       = "finished"
	StatusError          = "error"
)

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.TotalBytes > 0 {
		pct := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	if p.FragmentCount > 0 {
		return float64(p.FragmentIndex) / float64(p.FragmentCount) * 100
	}
	if p.Status == StatusFinished {
		return 100
	}
	return -1
}
