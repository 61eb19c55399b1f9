package selection

import (
	"strings"

	"tubefront/internal/catalog"
)

// Resolution is the local evaluation of a directive against a catalog.
type Resolution struct {
	// Tier is the index of the first matching tier, or -1 for explicit pairs
	// and unmatched directives.
	Tier       int
	Expression string
	Video      *catalog.Rendition
	Audio      *catalog.Rendition
}

// IDs returns the matched rendition identifiers in merge order.
func (r Resolution) IDs() []string {
	var ids []string
	if r.Video != nil {
		ids = append(ids, r.Video.ID)
	}
	if r.Audio != nil {
		ids = append(ids, r.Audio.ID)
	}
	return ids
}

// Resolve evaluates the directive against renditions the way the engine
// would: the first tier whose slots all match wins. Within a slot the highest
// resolution wins, then the highest bitrate, then catalog order. Virtual
// entries never match.
func (d Directive) Resolve(renditions []catalog.Rendition) (Resolution, bool) {
	candidates := make([]catalog.Rendition, 0, len(renditions))
	for _, r := range renditions {
		if !r.Virtual {
			candidates = append(candidates, r)
		}
	}

	if d.Explicit != "" {
		res := Resolution{Tier: -1, Expression: d.Explicit}
		parts := strings.Split(d.Explicit, "+")
		matched := make([]*catalog.Rendition, 0, len(parts))
		for _, id := range parts {
			r := pick(candidates, ID(id), "")
			if r == nil {
				return res, false
			}
			matched = append(matched, r)
		}
		res.Video = matched[0]
		if len(matched) > 1 {
			res.Audio = matched[1]
		}
		return res, true
	}

	for i, t := range d.Tiers {
		res := Resolution{Tier: i, Expression: t.Expression()}
		switch {
		case t.Merge():
			v := pick(candidates, t.Video, "")
			a := pick(candidates, t.Audio, "")
			if v == nil || a == nil {
				continue
			}
			res.Video, res.Audio = v, a
		case !t.Video.Empty():
			v := pick(candidates, t.Video, t.Container)
			if v == nil {
				continue
			}
			res.Video = v
		case !t.Audio.Empty():
			a := pick(candidates, t.Audio, t.Container)
			if a == nil {
				continue
			}
			res.Audio = a
		default:
			continue
		}
		return res, true
	}
	return Resolution{Tier: -1}, false
}

func pick(renditions []catalog.Rendition, c Constraint, container string) *catalog.Rendition {
	var best *catalog.Rendition
	for i := range renditions {
		r := &renditions[i]
		if !matches(*r, c, container) {
			continue
		}
		if c.Kind == KindID {
			return r
		}
		if best == nil || better(*r, *best) {
			best = r
		}
	}
	return best
}

func matches(r catalog.Rendition, c Constraint, container string) bool {
	switch c.Kind {
	case KindID:
		if r.ID != c.ID {
			return false
		}
	case KindBestVideo:
		if !r.VideoOnly {
			return false
		}
	case KindBestAudio:
		if !r.AudioOnly {
			return false
		}
	case KindBest:
		if !r.Muxed() {
			return false
		}
	default:
		return false
	}
	if c.MinHeight > 0 && (r.Height == nil || *r.Height < c.MinHeight) {
		return false
	}
	if c.Codec != "" {
		codec := r.VCodec
		if c.Kind == KindBestAudio {
			codec = r.ACodec
		}
		if !strings.HasPrefix(codec, c.Codec) {
			return false
		}
	}
	if container != "" && r.Ext != container {
		return false
	}
	return true
}

// better reports whether a strictly outranks b. Ties keep the earlier entry.
func better(a, b catalog.Rendition) bool {
	if ah, bh := a.HeightValue(), b.HeightValue(); ah != bh {
		return ah > bh
	}
	return a.Bitrate() > b.Bitrate()
}
