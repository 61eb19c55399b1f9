package selection

import (
	"fmt"
	"strings"
)

// Kind names what a constraint matches.
type Kind int

const (
	// KindNone leaves the slot empty.
	KindNone Kind = iota
	// KindID matches one rendition by identifier.
	KindID
	// KindBestVideo matches video-only renditions.
	KindBestVideo
	// KindBestAudio matches audio-only renditions.
	KindBestAudio
	// KindBest matches renditions that carry both tracks.
	KindBest
)

// Constraint filters one slot of a tier.
type Constraint struct {
	Kind      Kind
	ID        string
	MinHeight int
	Codec     string
}

// ID returns a constraint that matches one rendition identifier.
func ID(id string) Constraint { return Constraint{Kind: KindID, ID: id} }

// BestVideo returns a video-only constraint.
func BestVideo(minHeight int, codec string) Constraint {
	return Constraint{Kind: KindBestVideo, MinHeight: minHeight, Codec: codec}
}

// BestAudio returns an audio-only constraint.
func BestAudio(codec string) Constraint { return Constraint{Kind: KindBestAudio, Codec: codec} }

// Best returns a constraint matching renditions with both tracks.
func Best() Constraint { return Constraint{Kind: KindBest} }

// Empty reports whether the slot is unused.
func (c Constraint) Empty() bool { return c.Kind == KindNone }

func (c Constraint) render(container string) string {
	var b strings.Builder
	switch c.Kind {
	case KindID:
		b.WriteString(c.ID)
	case KindBestVideo:
		b.WriteString("bestvideo")
	case KindBestAudio:
		b.WriteString("bestaudio")
	case KindBest:
		b.WriteString("best")
	default:
		return ""
	}
	if c.MinHeight > 0 {
		fmt.Fprintf(&b, "[height>=%d]", c.MinHeight)
	}
	if c.Codec != "" {
		field := "vcodec"
		if c.Kind == KindBestAudio {
			field = "acodec"
		}
		fmt.Fprintf(&b, "[%s^=%s]", field, c.Codec)
	}
	if container != "" {
		fmt.Fprintf(&b, "[ext=%s]", container)
	}
	return b.String()
}

// Tier is one alternative in the fallback plan. When both Video and Audio are
// set the tier merges two streams; otherwise the single set slot names one
// stream and Container restricts its extension.
type Tier struct {
	Video     Constraint
	Audio     Constraint
	Container string
}

// Merge reports whether the tier combines two streams.
func (t Tier) Merge() bool { return !t.Video.Empty() && !t.Audio.Empty() }

// Expression renders the tier in engine selector syntax.
func (t Tier) Expression() string {
	switch {
	case t.Merge():
		return t.Video.render("") + "+" + t.Audio.render("")
	case !t.Video.Empty():
		return t.Video.render(t.Container)
	case !t.Audio.Empty():
		return t.Audio.render(t.Container)
	default:
		return ""
	}
}

func (t Tier) String() string { return t.Expression() }
