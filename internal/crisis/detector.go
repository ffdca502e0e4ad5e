// Package crisis flags distress in the fused perception state.
package crisis

import (
	"strings"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
)

// Kind identifies which rule raised a signal.
type Kind int

const (
	VisualDistress Kind = iota
	TextualDanger
)

func (k Kind) String() string {
	switch k {
	case VisualDistress:
		return "visual_distress"
	case TextualDanger:
		return "textual_danger"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Signal is one crisis indication.
type Signal struct {
	Kind   Kind          `json:"kind"`
	Detail string        `json:"detail"`
	Label  emotion.Label `json:"emotion"`
	At     time.Time     `json:"at"`
}

// Perception is the fused state the rules look at.
type Perception struct {
	Label emotion.Label
	Text  string
}

// Rules configures the detector.
type Rules struct {
	Threshold  float64
	Categories []emotion.Category
	Keywords   []string
}

// DefaultRules mirrors the shipped configuration.
func DefaultRules(keywords []string) Rules {
	return Rules{
		Threshold:  0.75,
		Categories: []emotion.Category{emotion.Sad, emotion.Fearful, emotion.Angry},
		Keywords:   keywords,
	}
}

// Detector evaluates the visual and textual rules. It holds no state
// between calls.
type Detector struct {
	threshold  float64
	categories map[emotion.Category]bool
	keywords   []string
	now        func() time.Time
}

// NewDetector builds a detector. Empty keywords are dropped since they would
// match every text.
func NewDetector(r Rules) *Detector {
	cats := make(map[emotion.Category]bool, len(r.Categories))
	for _, c := range r.Categories {
		cats[c] = true
	}
	kws := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	return &Detector{threshold: r.Threshold, categories: cats, keywords: kws, now: time.Now}
}

// Keywords returns the active keyword list.
func (d *Detector) Keywords() []string {
	return append([]string(nil), d.keywords...)
}

// Visual fires when the label is a distress category scored strictly above
// the threshold.
func (d *Detector) Visual(l emotion.Label) (Signal, bool) {
	if !d.categories[l.Category] || !(l.Score > d.threshold) {
		return Signal{}, false
	}
	return Signal{Kind: VisualDistress, Detail: l.String(), Label: l, At: d.now()}, true
}

// Textual fires when text contains any keyword. Detail is the first keyword
// matched in list order.
func (d *Detector) Textual(text string) (Signal, bool) {
	if text == "" {
		return Signal{}, false
	}
	for _, k := range d.keywords {
		if strings.Contains(text, k) {
			return Signal{Kind: TextualDanger, Detail: k, At: d.now()}, true
		}
	}
	return Signal{}, false
}

// Evaluate runs both rules and returns every signal raised, visual first.
func (d *Detector) Evaluate(p Perception) []Signal {
	var out []Signal
	if s, ok := d.Visual(p.Label); ok {
		s.Label = p.Label
		out = append(out, s)
	}
	if s, ok := d.Textual(p.Text); ok {
		s.Label = p.Label
		out = append(out, s)
	}
	return out
}
