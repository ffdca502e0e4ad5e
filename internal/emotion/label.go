// Package emotion samples facial expressions and reduces them to a single
// dominant label.
package emotion

import (
	"fmt"
	"math"
	"strings"
)

// Category is one of the canonical facial expression classes.
type Category string

const (
	Neutral   Category = "neutral"
	Happy     Category = "happy"
	Sad       Category = "sad"
	Angry     Category = "angry"
	Fearful   Category = "fearful"
	Disgusted Category = "disgusted"
	Surprised Category = "surprised"
)

// Canonical is the category order used to break ties in Dominant.
var Canonical = []Category{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

// face-api.js and most classifier sidecars use the short names.
var aliases = map[string]Category{
	"fear":     Fearful,
	"disgust":  Disgusted,
	"surprise": Surprised,
}

// ParseCategory maps a classifier label onto a canonical category.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := aliases[s]; ok {
		return c, true
	}
	for _, c := range Canonical {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Label is the dominant expression of one sample.
type Label struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"`
}

// Initial is the label held before any face has been seen.
func Initial() Label {
	return Label{Category: Neutral}
}

func (l Label) String() string {
	return fmt.Sprintf("%s %.2f", l.Category, l.Score)
}

// Distribution is a raw score per expression name as returned by a classifier.
type Distribution map[string]float64

// Dominant returns the highest-scoring canonical category. Ties go to the
// category that comes first in Canonical. Unknown names and NaN scores are
// ignored; ok is false when nothing usable remains.
func Dominant(d Distribution) (Label, bool) {
	norm := make(map[Category]float64, len(d))
	for name, score := range d {
		c, ok := ParseCategory(name)
		if !ok || math.IsNaN(score) {
			continue
		}
		score = max(0, min(1, score))
		if prev, seen := norm[c]; seen && prev >= score {
			continue
		}
		norm[c] = score
	}

	var best Label
	found := false
	for _, c := range Canonical {
		score, ok := norm[c]
		if !ok {
			continue
		}
		if !found || score > best.Score {
			best = Label{Category: c, Score: score}
			found = true
		}
	}
	return best, found
}
