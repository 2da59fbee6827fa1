package detector

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Detector names used in logs and errors.
const (
	NamePose = "pose"
	NameFace = "face"
	NameHand = "hand"
)

// ErrUnavailable is returned when a detector model cannot be loaded.
// It is fatal to the pipeline: no fusion is attempted without detectors.
var ErrUnavailable = errors.New("detector: unavailable")

// InvocationError reports a single failed detector call. The pipeline
// recovers from it by holding the previous result for that detector.
type InvocationError struct {
	Detector string
	Err      error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("detector [%s]: invocation failed: %v", e.Detector, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PoseDetector finds body landmarks in a frame.
type PoseDetector interface {
	// DetectPose returns one BodyLandmarks per detected person.
	// Returns an empty slice if nobody is detected.
	DetectPose(frame *gocv.Mat, ts int64) ([]BodyLandmarks, error)
}

// FaceDetector finds face meshes and blendshapes in a frame.
type FaceDetector interface {
	// DetectFaces returns one FaceLandmarks per detected face.
	DetectFaces(frame *gocv.Mat, ts int64) ([]FaceLandmarks, error)
}

// HandDetector finds hand landmarks in a frame.
type HandDetector interface {
	// DetectHands analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	DetectHands(frame *gocv.Mat, ts int64) ([]HandLandmarks, error)
}

// Detector bundles the three perception detectors behind one lifecycle.
type Detector interface {
	PoseDetector
	FaceDetector
	HandDetector

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the perception detectors.
type Config struct {
	// MaxPoses is the maximum number of bodies to detect.
	MaxPoses int
	// PoseConfidence is the minimum pose detection, presence and tracking confidence.
	PoseConfidence float64

	// MaxFaces is the maximum number of faces to detect.
	MaxFaces int
	// FaceConfidence is the minimum face detection, presence and tracking confidence.
	FaceConfidence float64

	// MaxHands is the maximum number of hands to detect.
	MaxHands int
	// HandConfidence is the minimum hand detection confidence threshold.
	HandConfidence float64
}

// DefaultConfig returns a Config tuned for a kiosk with up to five visitors.
func DefaultConfig() Config {
	return Config{
		MaxPoses:       5,
		PoseConfidence: 0.85,
		MaxFaces:       5,
		FaceConfidence: 0.7,
		MaxHands:       2,
		HandConfidence: 0.5,
	}
}
