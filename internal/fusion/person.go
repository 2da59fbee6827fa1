package fusion

import (
	"sort"

	"github.com/ayusman/abhinaya/internal/detector"
)

// Palette colours people by their frame-local identity.
var Palette = [...]string{"#38bdf8", "#f472b6", "#34d399", "#fbbf24", "#a78bfa"}

// ColorFor returns the palette colour for a frame-local identity.
func ColorFor(identity int) string {
	return Palette[identity%len(Palette)]
}

// Regional is the latest secondary classifier output for one face.
type Regional struct {
	// HasAccessory is meaningful only when AccessoryKnown is set.
	HasAccessory   bool
	AccessoryKnown bool
	// Emotion is empty until the expression classifier has answered once.
	Emotion string
}

// RegionLookup returns the cached classifier output for a face index.
type RegionLookup func(face int) Regional

// PersonRecord is the fused state of one detected body in the current frame.
type PersonRecord struct {
	Identity       int     `json:"identity"`
	Color          string  `json:"color"`
	Posture        string  `json:"posture"`
	Arms           string  `json:"arms"`
	FaceIdentity   int     `json:"face_identity"`
	Emotion        string  `json:"emotion"`
	ExpressionHint string  `json:"expression_hint"`
	Squinting      bool    `json:"squinting"`
	Confused       bool    `json:"confused"`
	HasAccessory   bool    `json:"has_accessory"`
	BoundingArea   float64 `json:"bounding_area"`
	Gesture        string  `json:"gesture,omitempty"`
	Primary        bool    `json:"primary"`
}

// Matched reports whether the record has a face from the same frame.
func (p *PersonRecord) Matched() bool {
	return p.FaceIdentity != NoFace
}

// Build creates one record per body. matches comes from Correlate over the
// same bodies and faces. lookup may be nil when no classifier runs.
//
// A classifier emotion supersedes the blendshape label; the blendshape label
// is always kept in ExpressionHint.
func Build(bodies []detector.BodyLandmarks, faces []detector.FaceLandmarks, matches []int, lookup RegionLookup) []PersonRecord {
	records := make([]PersonRecord, len(bodies))

	for i := range bodies {
		body := &bodies[i]
		r := PersonRecord{
			Identity:     i,
			Color:        ColorFor(i),
			Posture:      ClassifyPosture(body),
			Arms:         ClassifyArms(body),
			FaceIdentity: NoFace,
			Emotion:      Scanning,
		}

		if i < len(matches) && matches[i] >= 0 && matches[i] < len(faces) {
			face := &faces[matches[i]]
			expr := AnalyzeExpression(face)

			r.FaceIdentity = matches[i]
			r.Emotion = expr.Label
			r.ExpressionHint = expr.Label
			r.Squinting = expr.Squinting
			r.Confused = expr.Confused
			r.BoundingArea = face.Bounds().Area()

			if lookup != nil {
				region := lookup(matches[i])
				if region.Emotion != "" {
					r.Emotion = region.Emotion
				}
				r.HasAccessory = region.AccessoryKnown && region.HasAccessory
			}
		}

		records[i] = r
	}
	return records
}

// Rank orders records by descending bounding area, keeping detection order
// for ties, and marks the first as primary.
func Rank(records []PersonRecord) {
	sort.SliceStable(records, func(a, b int) bool {
		return records[a].BoundingArea > records[b].BoundingArea
	})
	for i := range records {
		records[i].Primary = i == 0
	}
}

// Primary returns the primary record of a ranked slice, or nil when empty.
func Primary(records []PersonRecord) *PersonRecord {
	if len(records) == 0 {
		return nil
	}
	return &records[0]
}

// AttachGesture labels the record whose body has a wrist nearest the hand's
// wrist, within MatchGate. Records must still be in detection order.
// It returns the identity that received the label, or -1.
func AttachGesture(records []PersonRecord, bodies []detector.BodyLandmarks, hand *detector.HandLandmarks, label string) int {
	if hand == nil || label == "" {
		return -1
	}

	wrist := hand.Points[detector.Wrist]
	best, owner := MatchGate, -1
	for i := range bodies {
		for _, idx := range []int{detector.PoseLeftWrist, detector.PoseRightWrist} {
			if d := detector.Distance2D(wrist, bodies[i].Points[idx].Point3D); d < best {
				best, owner = d, i
			}
		}
	}

	if owner < 0 || owner >= len(records) {
		return -1
	}
	records[owner].Gesture = label
	return owner
}
