package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results per detector.
type MockDetector struct {
	mu sync.Mutex

	bodies []BodyLandmarks
	faces  []FaceLandmarks
	hands  []HandLandmarks

	poseErr error
	faceErr error
	handErr error

	poseCalls int
	faceCalls int
	handCalls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetBodies sets the bodies that will be returned by DetectPose.
func (m *MockDetector) SetBodies(bodies []BodyLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = bodies
}

// SetFaces sets the faces that will be returned by DetectFaces.
func (m *MockDetector) SetFaces(faces []FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetHands sets the hands that will be returned by DetectHands.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error returned by the named detector (NamePose, NameFace
// or NameHand). A nil error clears it.
func (m *MockDetector) SetError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case NamePose:
		m.poseErr = err
	case NameFace:
		m.faceErr = err
	case NameHand:
		m.handErr = err
	}
}

// Calls returns how many times the named detector has been invoked.
func (m *MockDetector) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case NamePose:
		return m.poseCalls
	case NameFace:
		return m.faceCalls
	case NameHand:
		return m.handCalls
	}
	return 0
}

// DetectPose returns the pre-configured bodies or error.
func (m *MockDetector) DetectPose(frame *gocv.Mat, ts int64) ([]BodyLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.poseCalls++
	if m.poseErr != nil {
		return nil, m.poseErr
	}
	return m.bodies, nil
}

// DetectFaces returns the pre-configured faces or error.
func (m *MockDetector) DetectFaces(frame *gocv.Mat, ts int64) ([]FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.faceCalls++
	if m.faceErr != nil {
		return nil, m.faceErr
	}
	return m.faces, nil
}

// DetectHands returns the pre-configured hands or error.
func (m *MockDetector) DetectHands(frame *gocv.Mat, ts int64) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handCalls++
	if m.handErr != nil {
		return nil, m.handErr
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingBody returns a body facing the camera with straight legs and both
// wrists clearly visible. The nose sits at (noseX, noseY).
func StandingBody(noseX, noseY float64) BodyLandmarks {
	var b BodyLandmarks
	for i := range b.Points {
		b.Points[i] = Landmark{Point3D: Point3D{X: noseX, Y: noseY}, Visibility: 0.9}
	}

	b.Points[PoseNose] = Landmark{Point3D: Point3D{X: noseX, Y: noseY}, Visibility: 0.99}
	b.Points[PoseLeftShoulder] = Landmark{Point3D: Point3D{X: noseX + 0.08, Y: noseY + 0.12}, Visibility: 0.95}
	b.Points[PoseRightShoulder] = Landmark{Point3D: Point3D{X: noseX - 0.08, Y: noseY + 0.12}, Visibility: 0.95}
	b.Points[PoseLeftWrist] = Landmark{Point3D: Point3D{X: noseX + 0.12, Y: noseY + 0.35}, Visibility: 0.9}
	b.Points[PoseRightWrist] = Landmark{Point3D: Point3D{X: noseX - 0.12, Y: noseY + 0.35}, Visibility: 0.9}

	// Hips, knees and ankles stacked vertically: 180 degree knees
	b.Points[PoseLeftHip] = Landmark{Point3D: Point3D{X: noseX + 0.05, Y: noseY + 0.40}, Visibility: 0.9}
	b.Points[PoseRightHip] = Landmark{Point3D: Point3D{X: noseX - 0.05, Y: noseY + 0.40}, Visibility: 0.9}
	b.Points[PoseLeftKnee] = Landmark{Point3D: Point3D{X: noseX + 0.05, Y: noseY + 0.55}, Visibility: 0.9}
	b.Points[PoseRightKnee] = Landmark{Point3D: Point3D{X: noseX - 0.05, Y: noseY + 0.55}, Visibility: 0.9}
	b.Points[PoseLeftAnkle] = Landmark{Point3D: Point3D{X: noseX + 0.05, Y: noseY + 0.70}, Visibility: 0.9}
	b.Points[PoseRightAnkle] = Landmark{Point3D: Point3D{X: noseX - 0.05, Y: noseY + 0.70}, Visibility: 0.9}

	return b
}

// SittingBody returns a body whose left knee is bent at a right angle and
// whose right wrist is out of view.
func SittingBody(noseX, noseY float64) BodyLandmarks {
	b := StandingBody(noseX, noseY)

	// Thigh horizontal, shin vertical: 90 degree left knee
	b.Points[PoseLeftKnee] = Landmark{Point3D: Point3D{X: noseX + 0.20, Y: noseY + 0.40}, Visibility: 0.9}
	b.Points[PoseLeftAnkle] = Landmark{Point3D: Point3D{X: noseX + 0.20, Y: noseY + 0.55}, Visibility: 0.9}
	b.Points[PoseRightWrist].Visibility = 0.2

	return b
}

// FaceAt returns a square face mesh of the given side length centred on
// (cx, cy), with its nose tip at the centre and the given blendshapes.
func FaceAt(cx, cy, side float64, blendshapes map[string]float64) FaceLandmarks {
	half := side / 2
	points := []Point3D{
		{X: cx, Y: cy - half},        // forehead
		{X: cx, Y: cy},               // nose tip
		{X: cx - half, Y: cy},        // left cheek
		{X: cx + half, Y: cy},        // right cheek
		{X: cx, Y: cy + half},        // chin
		{X: cx - half, Y: cy - half}, // corners keep the box square
		{X: cx + half, Y: cy + half},
	}

	if blendshapes == nil {
		blendshapes = map[string]float64{}
	}
	return FaceLandmarks{Points: points, Blendshapes: blendshapes}
}

// PinchLandmarks returns an open hand whose thumb and index tips touch.
// The wrist sits at (wristX, wristY).
func PinchLandmarks(wristX, wristY float64) HandLandmarks {
	h := OpenPalmLandmarks()
	dx := wristX - h.Points[Wrist].X
	dy := wristY - h.Points[Wrist].Y
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}

	// Fold index tip onto the thumb tip
	h.Points[IndexTip] = Point3D{
		X: h.Points[ThumbTip].X - 0.01,
		Y: h.Points[ThumbTip].Y - 0.01,
		Z: h.Points[ThumbTip].Z,
	}
	return h
}

// ThumbsUpLandmarks returns a preset HandLandmarks representing a thumbs up gesture.
// The thumb is extended upward while other fingers are curled.
func ThumbsUpLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended upward (Y decreases going up)
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.65, Z: 0.0}
	landmarks.Points[ThumbIP] = Point3D{X: 0.58, Y: 0.50, Z: 0.0}
	landmarks.Points[ThumbTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.70, Z: -0.02}
	landmarks.Points[IndexPIP] = Point3D{X: 0.55, Y: 0.68, Z: -0.05}
	landmarks.Points[IndexDIP] = Point3D{X: 0.52, Y: 0.70, Z: -0.04}
	landmarks.Points[IndexTip] = Point3D{X: 0.50, Y: 0.72, Z: -0.02}

	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	landmarks.Points[MiddleTip] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	landmarks.Points[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.70, Z: -0.04}
	landmarks.Points[RingTip] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.37, Y: 0.72, Z: -0.04}
	landmarks.Points[PinkyTip] = Point3D{X: 0.35, Y: 0.74, Z: -0.02}

	return landmarks
}

// OpenPalmLandmarks returns a preset HandLandmarks representing an open palm gesture.
// All fingers are extended outward.
func OpenPalmLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended to the side
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	landmarks.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70, Z: 0.0}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60, Z: 0.0}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	landmarks.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42, Z: 0.0}

	return landmarks
}
