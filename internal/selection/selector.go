package selection

import (
	"strings"

	"tubefront/internal/catalog"
	"tubefront/internal/services"
)

// Policy holds the service-wide quality thresholds for the default tiers.
type Policy struct {
	MinHeight  int
	VideoCodec string
	AudioCodec string
	Container  string
}

// Directive is the ordered plan handed to the engine.
type Directive struct {
	Mode Mode
	// Explicit holds a caller-supplied pair rendered verbatim.
	Explicit string
	Tiers    []Tier
	// ExtractAudio asks the engine to re-encode the fetched stream to audio.
	ExtractAudio bool
}

// Expression renders the plan for the engine: the explicit pair, or the tier
// expressions joined with the fallback operator. Repeated tiers collapse.
func (d Directive) Expression() string {
	if d.Explicit != "" {
		return d.Explicit
	}
	parts := make([]string, 0, len(d.Tiers))
	seen := make(map[string]struct{}, len(d.Tiers))
	for _, t := range d.Tiers {
		expr := t.Expression()
		if expr == "" {
			continue
		}
		if _, dup := seen[expr]; dup {
			continue
		}
		seen[expr] = struct{}{}
		parts = append(parts, expr)
	}
	return strings.Join(parts, "/")
}

// Empty reports whether the directive carries no alternatives.
func (d Directive) Empty() bool { return d.Expression() == "" }

// Select builds the fallback plan for intent. The result is a pure function of
// its inputs and is never empty on success.
func Select(intent Intent, policy Policy) (Directive, error) {
	if err := intent.Validate(); err != nil {
		return Directive{}, err
	}
	d := Directive{Mode: intent.Mode(), ExtractAudio: intent.AudioOnly}
	switch d.Mode {
	case ModePair:
		d.Explicit = normalizePair(intent.FormatID)
	case ModeAudio:
		if intent.FormatID != "" {
			d.Tiers = append(d.Tiers, Tier{Audio: ID(intent.FormatID)})
		}
		d.Tiers = append(d.Tiers,
			Tier{Audio: BestAudio(policy.AudioCodec)},
			Tier{Audio: BestAudio("")},
		)
	case ModeExplicit:
		d.Tiers = []Tier{
			{Video: ID(intent.FormatID), Audio: BestAudio("")},
			{Video: ID(intent.FormatID)},
			{Video: Best()},
		}
	default:
		d.Tiers = []Tier{
			{Video: BestVideo(policy.MinHeight, policy.VideoCodec), Audio: BestAudio(policy.AudioCodec)},
			{Video: Best(), Container: policy.Container},
			{Video: BestVideo(0, ""), Audio: BestAudio("")},
			{Video: Best()},
		}
	}
	if d.Empty() {
		return Directive{}, services.Wrap(services.ErrNoViableFormat, "selection", "select", "empty plan", nil)
	}
	return d, nil
}

// Plan selects and then resolves against a catalog in one step. The resolution
// is informational; the engine still receives the full fallback chain.
func Plan(intent Intent, renditions []catalog.Rendition, policy Policy) (Directive, Resolution, error) {
	d, err := Select(intent, policy)
	if err != nil {
		return Directive{}, Resolution{}, err
	}
	res, _ := d.Resolve(renditions)
	return d, res, nil
}

func normalizePair(id string) string {
	parts := strings.Split(id, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, "+")
}
