package selection

import (
	"fmt"
	"strings"

	"tubefront/internal/services"
)

// Mode is the precedence class an intent falls into.
type Mode string

const (
	// ModePair passes an explicit "<video>+<audio>" identifier pair through.
	ModePair Mode = "pair"
	// ModeExplicit targets one rendition id with fallbacks.
	ModeExplicit Mode = "explicit"
	// ModeAudio requests audio extraction.
	ModeAudio Mode = "audio"
	// ModeBest applies the policy tiers.
	ModeBest Mode = "best"
)

// ExtractSuffix marks a format id chosen from the virtual extraction entry.
const ExtractSuffix = ".mp3"

// Intent is what the caller asked for.
type Intent struct {
	FormatID  string
	AudioOnly bool
}

// ParseIntent normalizes a raw format id and audio flag. Identifiers carrying
// ExtractSuffix are treated as audio intent with the suffix removed.
func ParseIntent(formatID string, audioOnly bool) Intent {
	id := strings.TrimSpace(formatID)
	if strings.HasSuffix(strings.ToLower(id), ExtractSuffix) {
		id = strings.TrimSpace(id[:len(id)-len(ExtractSuffix)])
		audioOnly = true
	}
	return Intent{FormatID: id, AudioOnly: audioOnly}
}

// Validate rejects identifiers the engine would misread: empty halves of a
// "+" pair, and anything outside the rendition id alphabet, which would
// otherwise splice selector operators into the engine expression.
func (i Intent) Validate() error {
	if i.FormatID == "" {
		return nil
	}
	for _, part := range strings.Split(i.FormatID, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return services.Wrap(services.ErrInputInvalid, "selection", "parse intent",
				fmt.Sprintf("format id %q has an empty side of '+'", i.FormatID), nil)
		}
		if !validID(part) {
			return services.Wrap(services.ErrInputInvalid, "selection", "parse intent",
				fmt.Sprintf("format id %q contains characters outside [A-Za-z0-9_.-]", i.FormatID), nil)
		}
	}
	return nil
}

func validID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// Mode reports the precedence class: explicit pair, then audio extraction,
// then an explicit single id, then the policy default.
func (i Intent) Mode() Mode {
	switch {
	case i.isPair():
		return ModePair
	case i.AudioOnly:
		return ModeAudio
	case i.FormatID != "":
		return ModeExplicit
	default:
		return ModeBest
	}
}

func (i Intent) isPair() bool {
	if !strings.Contains(i.FormatID, "+") {
		return false
	}
	for _, part := range strings.Split(i.FormatID, "+") {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}
