// Package gesture labels a single hand with a static pose name by matching its
// wrist-normalized landmarks against templates.
package gesture

import (
	"math"
	"sort"
	"sync"

	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/pointer"
)

// Pose labels.
const (
	OpenPalm = "Open Palm"
	ThumbsUp = "Thumbs Up"
	Pinch    = "Pinch"
	Point    = "Point"
	Fist     = "Fist"
)

// DefaultTolerance is the tolerance of the built-in poses.
const DefaultTolerance = 3.0

// Template is a named hand pose in normalized coordinates.
type Template struct {
	Name      string
	Landmarks []detector.Point3D
	// Tolerance is the largest summed point distance that still matches.
	Tolerance float64
}

// Match is a template within tolerance of the input.
type Match struct {
	Template *Template
	Score    float64 // 1 / (1 + Distance)
	Distance float64
}

// Recognizer matches hands against a set of templates. Pinch is decided
// geometrically before any template is consulted, using the same thumb to
// index distance the pointer uses.
type Recognizer struct {
	mu             sync.RWMutex
	templates      []*Template
	pinchThreshold float64
}

// NewRecognizer returns a recognizer loaded with the built-in poses. It
// labels Pinch below the pointer's pinch threshold; zero means
// pointer.DefaultPinchThreshold.
func NewRecognizer(pinchThreshold float64) *Recognizer {
	if pinchThreshold <= 0 {
		pinchThreshold = pointer.DefaultPinchThreshold
	}
	r := &Recognizer{pinchThreshold: pinchThreshold}
	for _, p := range presets() {
		tmpl, err := Train(p.name, DefaultTolerance, p.hand)
		if err != nil {
			// presets are fixed and well-formed
			panic(err)
		}
		r.Add(tmpl)
	}
	return r
}

// Add registers a template, replacing any template with the same name.
func (r *Recognizer) Add(t *Template) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.templates {
		if existing.Name == t.Name {
			r.templates[i] = t
			return
		}
	}
	r.templates = append(r.templates, t)
}

// Recognize returns the best label for hand and its score in (0, 1]. It
// returns "", 0 when nothing is within tolerance.
func (r *Recognizer) Recognize(hand *detector.HandLandmarks) (string, float64) {
	if hand == nil {
		return "", 0
	}
	if detector.Distance3D(hand.Points[detector.ThumbTip], hand.Points[detector.IndexTip]) < r.pinchThreshold {
		return Pinch, 1
	}

	matches := r.Match(hand)
	if len(matches) == 0 {
		return "", 0
	}
	return matches[0].Template.Name, matches[0].Score
}

// Match returns every template within tolerance of hand, best first.
func (r *Recognizer) Match(hand *detector.HandLandmarks) []Match {
	normalized := hand.Normalize()
	if normalized == nil {
		return nil
	}
	input := normalized.Points[:]

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []Match
	for _, t := range r.templates {
		d := summedDistance(input, t.Landmarks)
		if d > t.Tolerance {
			continue
		}
		matches = append(matches, Match{Template: t, Score: 1 / (1 + d), Distance: d})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches
}

// summedDistance adds the distances between corresponding points. Sets of
// different length never match.
func summedDistance(a, b []detector.Point3D) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(1)
	}

	var total float64
	for i := range a {
		total += detector.Distance3D(a[i], b[i])
	}
	return total
}
