// Package detector provides the perception data model and the pose, face and
// hand detector interfaces consumed by the fusion core.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Pose landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	PoseNose          = 0
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24
	PoseLeftKnee      = 25
	PoseRightKnee     = 26
	PoseLeftAnkle     = 27
	PoseRightAnkle    = 28
	NumPoseLandmarks  = 33
)

// FaceNoseTip is the face-mesh landmark used as the face anchor.
const FaceNoseTip = 1

// Blendshape category names read by the expression heuristics.
const (
	BrowInnerUp      = "browInnerUp"
	BrowDownLeft     = "browDownLeft"
	BrowDownRight    = "browDownRight"
	BrowOuterUpLeft  = "browOuterUpLeft"
	BrowOuterUpRight = "browOuterUpRight"
	EyeSquintLeft    = "eyeSquintLeft"
	EyeSquintRight   = "eyeSquintRight"
	JawOpen          = "jawOpen"
	MouthSmileLeft   = "mouthSmileLeft"
	MouthSmileRight  = "mouthSmileRight"
)

// Point3D represents a 3D point in normalized image coordinates.
// X and Y are in [0,1] relative to frame width and height; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmark is a Point3D with a visibility confidence in [0,1].
// Visibility is zero when the detector does not report it.
type Landmark struct {
	Point3D
	Visibility float64 `json:"visibility"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// BodyLandmarks represents the 33 pose landmarks of one detected person.
type BodyLandmarks struct {
	Points [NumPoseLandmarks]Landmark `json:"points"`
}

// Anchor returns the point used to correlate the body with a face (the nose).
func (b *BodyLandmarks) Anchor() Point3D {
	return b.Points[PoseNose].Point3D
}

// FaceLandmarks represents one face mesh with its blendshape scores.
type FaceLandmarks struct {
	Points      []Point3D          `json:"points"`
	Blendshapes map[string]float64 `json:"blendshapes"`
}

// Score returns the blendshape score for name, or 0 when absent.
func (f *FaceLandmarks) Score(name string) float64 {
	if f == nil || f.Blendshapes == nil {
		return 0
	}
	return f.Blendshapes[name]
}

// Anchor returns the nose-tip landmark, or the origin for an empty mesh.
func (f *FaceLandmarks) Anchor() Point3D {
	if f == nil || len(f.Points) <= FaceNoseTip {
		return Point3D{}
	}
	return f.Points[FaceNoseTip]
}

// Box is an axis-aligned rectangle in normalized image coordinates.
type Box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the box width.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box height.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Area returns the box area.
func (b Box) Area() float64 { return b.Width() * b.Height() }

// Empty reports whether the box has no area.
func (b Box) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// Bounds returns the landmark bounding box of the face mesh.
func (f *FaceLandmarks) Bounds() Box {
	if f == nil || len(f.Points) == 0 {
		return Box{}
	}

	box := Box{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, p := range f.Points {
		box.MinX = math.Min(box.MinX, p.X)
		box.MinY = math.Min(box.MinY, p.Y)
		box.MaxX = math.Max(box.MaxX, p.X)
		box.MaxY = math.Max(box.MaxY, p.Y)
	}
	return box
}

// Distance3D calculates the Euclidean distance between two 3D points.
func Distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D calculates the image-plane distance between two points, ignoring depth.
func Distance2D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Normalize normalizes the hand landmarks relative to wrist position and hand size.
// The normalized landmarks have the wrist at origin (0,0,0) and are scaled
// so that the distance from wrist to middle finger MCP is 1.0.
// Returns a new HandLandmarks instance with normalized points.
func (h *HandLandmarks) Normalize() *HandLandmarks {
	if h == nil {
		return nil
	}

	normalized := &HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = Point3D{
			X: h.Points[i].X - wrist.X,
			Y: h.Points[i].Y - wrist.Y,
			Z: h.Points[i].Z - wrist.Z,
		}
	}

	scale := Distance3D(Point3D{}, normalized.Points[MiddleMCP])

	// Avoid division by zero
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i].X /= scale
		normalized.Points[i].Y /= scale
		normalized.Points[i].Z /= scale
	}

	return normalized
}
