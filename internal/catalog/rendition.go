package catalog

import (
	"strings"

	"tubefront/internal/services/ytdlp"
)

// CodecNone is the engine's marker for an absent track.
const CodecNone = "none"

// Rendition is one normalized catalog entry.
type Rendition struct {
	ID        string   `json:"format_id"`
	Ext       string   `json:"ext"`
	Height    *int     `json:"height"`
	ABR       *float64 `json:"abr"`
	TBR       *float64 `json:"tbr,omitempty"`
	VCodec    string   `json:"vcodec"`
	ACodec    string   `json:"acodec"`
	Note      string   `json:"note"`
	Filesize  *int64   `json:"filesize,omitempty"`
	AudioOnly bool     `json:"audio_only"`
	VideoOnly bool     `json:"video_only"`
	Virtual   bool     `json:"virtual,omitempty"`
}

// HasVideo reports whether the rendition carries a video track. Unknown codecs
// count as present, matching the engine's own selector semantics.
func (r Rendition) HasVideo() bool { return r.VCodec != CodecNone }

// HasAudio reports whether the rendition carries an audio track.
func (r Rendition) HasAudio() bool { return r.ACodec != CodecNone }

// Muxed reports whether the rendition carries both tracks.
func (r Rendition) Muxed() bool { return r.HasVideo() && r.HasAudio() }

// HeightValue returns the vertical resolution or 0 when unknown.
func (r Rendition) HeightValue() int {
	if r.Height == nil {
		return 0
	}
	return *r.Height
}

// Bitrate returns the audio bitrate for audio-only renditions and the total
// bitrate otherwise, falling back to whichever is known.
func (r Rendition) Bitrate() float64 {
	if r.AudioOnly && r.ABR != nil {
		return *r.ABR
	}
	if r.TBR != nil {
		return *r.TBR
	}
	if r.ABR != nil {
		return *r.ABR
	}
	return 0
}

// Catalog is the normalized probe result for one URL.
type Catalog struct {
	URL        string      `json:"-"`
	ID         string      `json:"id,omitempty"`
	Title      string      `json:"title"`
	Thumbnail  string      `json:"thumbnail"`
	Duration   float64     `json:"duration"`
	Uploader   string      `json:"uploader,omitempty"`
	Renditions []Rendition `json:"formats"`
}

// Find returns the first non-virtual rendition with id.
func (c *Catalog) Find(id string) (Rendition, bool) {
	if c == nil {
		return Rendition{}, false
	}
	for _, r := range c.Renditions {
		if !r.Virtual && r.ID == id {
			return r, true
		}
	}
	return Rendition{}, false
}

// Virtual returns the synthesized extraction entry if present.
func (c *Catalog) Virtual() (Rendition, bool) {
	if c == nil {
		return Rendition{}, false
	}
	for _, r := range c.Renditions {
		if r.Virtual {
			return r, true
		}
	}
	return Rendition{}, false
}

// Normalize converts an engine probe document into a Catalog. audioFormat is the
// extraction target advertised by the virtual entry (for example "mp3").
func Normalize(info *ytdlp.Info, audioFormat string) *Catalog {
	if info == nil {
		return &Catalog{}
	}
	out := &Catalog{
		ID:         info.ID,
		Title:      info.Title,
		Thumbnail:  info.Thumbnail,
		Duration:   info.Duration,
		Uploader:   info.Uploader,
		Renditions: make([]Rendition, 0, len(info.Formats)+1),
	}
	for _, f := range info.Formats {
		r, ok := normalizeFormat(f)
		if !ok {
			continue
		}
		out.Renditions = append(out.Renditions, r)
	}
	if virtual, ok := synthesizeAudio(out.Renditions, audioFormat); ok {
		out.Renditions = append(out.Renditions, virtual)
	}
	return out
}

func normalizeFormat(f ytdlp.Format) (Rendition, bool) {
	id := strings.TrimSpace(f.FormatID)
	if id == "" {
		return Rendition{}, false
	}
	r := Rendition{
		ID:       id,
		Ext:      f.Ext,
		Height:   f.Height,
		ABR:      f.ABR,
		TBR:      f.TBR,
		VCodec:   strings.TrimSpace(f.VCodec),
		ACodec:   strings.TrimSpace(f.ACodec),
		Note:     f.FormatNote,
		Filesize: f.Filesize,
	}
	if r.Filesize == nil {
		r.Filesize = f.FilesizeApprox
	}
	if !r.HasVideo() && !r.HasAudio() {
		return Rendition{}, false
	}
	r.AudioOnly = r.HasAudio() && !r.HasVideo()
	r.VideoOnly = r.HasVideo() && !r.HasAudio()
	return r, true
}

// synthesizeAudio builds the virtual extraction entry. Its bitrate is the
// maximum over audio-only renditions; catalogs whose audio only exists inside
// muxed renditions inherit from the best of those instead.
func synthesizeAudio(renditions []Rendition, audioFormat string) (Rendition, bool) {
	audioFormat = strings.ToLower(strings.TrimSpace(audioFormat))
	if audioFormat == "" {
		audioFormat = "mp3"
	}

	best, ok := bestByABR(renditions, func(r Rendition) bool { return r.AudioOnly })
	if !ok {
		best, ok = bestByABR(renditions, Rendition.Muxed)
	}
	if !ok {
		return Rendition{}, false
	}
	return Rendition{
		ID:        best.ID,
		Ext:       audioFormat,
		ABR:       best.ABR,
		VCodec:    CodecNone,
		ACodec:    audioFormat,
		Note:      "Extracted " + strings.ToUpper(audioFormat),
		AudioOnly: true,
		Virtual:   true,
	}, true
}

func bestByABR(renditions []Rendition, keep func(Rendition) bool) (Rendition, bool) {
	var (
		best  Rendition
		found bool
	)
	for _, r := range renditions {
		if !keep(r) {
			continue
		}
		if !found || abrValue(r) > abrValue(best) {
			best = r
			found = true
		}
	}
	return best, found
}

func abrValue(r Rendition) float64 {
	if r.ABR == nil {
		return 0
	}
	return *r.ABR
}
