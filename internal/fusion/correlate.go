package fusion

import (
	"sort"

	"github.com/ayusman/abhinaya/internal/detector"
)

// MatchGate is the anchor distance a face must be strictly under to match a body.
const MatchGate = 0.2

// NoFace marks a body without a matched face.
const NoFace = -1

// Correlate pairs each body with the face whose anchor is nearest to the
// body's nose, if that distance is under MatchGate. The result holds a face
// index per body, or NoFace.
//
// Matching is greedy per body, so two bodies may share one face. With
// exclusive set, pairs are instead taken in order of increasing distance and
// each face is used at most once.
func Correlate(bodies []detector.BodyLandmarks, faces []detector.FaceLandmarks, exclusive bool) []int {
	if exclusive {
		return correlateExclusive(bodies, faces)
	}

	matches := make([]int, len(bodies))
	for i := range bodies {
		matches[i] = NoFace
		best := MatchGate
		anchor := bodies[i].Anchor()

		for j := range faces {
			d := detector.Distance2D(anchor, faces[j].Anchor())
			if d < best {
				best = d
				matches[i] = j
			}
		}
	}
	return matches
}

type candidate struct {
	body, face int
	dist       float64
}

func correlateExclusive(bodies []detector.BodyLandmarks, faces []detector.FaceLandmarks) []int {
	var pairs []candidate
	for i := range bodies {
		anchor := bodies[i].Anchor()
		for j := range faces {
			if d := detector.Distance2D(anchor, faces[j].Anchor()); d < MatchGate {
				pairs = append(pairs, candidate{body: i, face: j, dist: d})
			}
		}
	}

	// Stable on (body, face) order so equal distances resolve like the greedy path
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].dist < pairs[b].dist })

	matches := make([]int, len(bodies))
	for i := range matches {
		matches[i] = NoFace
	}
	taken := make([]bool, len(faces))
	for _, p := range pairs {
		if matches[p.body] != NoFace || taken[p.face] {
			continue
		}
		matches[p.body] = p.face
		taken[p.face] = true
	}
	return matches
}
