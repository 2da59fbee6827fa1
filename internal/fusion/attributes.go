// Package fusion combines one frame's body, face and hand detections into
// ranked per-person records.
//
// Everything here is a pure function of the current frame's detections, plus
// whatever cached classifier results the caller supplies. Nothing in this
// package keeps state between frames.
package fusion

import (
	"math"

	"github.com/ayusman/abhinaya/internal/detector"
)

// Posture labels.
const (
	Standing = "Standing"
	Sitting  = "Sitting"
)

// Arm visibility labels.
const (
	ArmsBoth      = "Both"
	ArmsLeftOnly  = "Left Only"
	ArmsRightOnly = "Right Only"
	ArmsNone      = "None"
)

// Empirical thresholds for the body heuristics.
const (
	// SittingKneeAngle is the knee angle in degrees below which a leg counts as bent.
	SittingKneeAngle = 140.0
	// WristVisibility is the visibility a wrist must exceed to count as shown.
	WristVisibility = 0.65
)

// CalculateAngle returns the angle at b formed by a-b-c, in degrees within [0, 180].
// A degenerate triangle (all points equal) yields 0.
func CalculateAngle(a, b, c detector.Point3D) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// KneeAngles returns the left and right interior knee angles of a body.
func KneeAngles(body *detector.BodyLandmarks) (left, right float64) {
	p := &body.Points
	left = CalculateAngle(p[detector.PoseLeftHip].Point3D, p[detector.PoseLeftKnee].Point3D, p[detector.PoseLeftAnkle].Point3D)
	right = CalculateAngle(p[detector.PoseRightHip].Point3D, p[detector.PoseRightKnee].Point3D, p[detector.PoseRightAnkle].Point3D)
	return left, right
}

// PostureFromAngles classifies a pair of knee angles. Exactly 140 degrees is standing.
func PostureFromAngles(left, right float64) string {
	if left < SittingKneeAngle || right < SittingKneeAngle {
		return Sitting
	}
	return Standing
}

// ClassifyPosture reports whether the body is sitting or standing.
func ClassifyPosture(body *detector.BodyLandmarks) string {
	return PostureFromAngles(KneeAngles(body))
}

// ClassifyArms reports which wrists are clearly visible.
func ClassifyArms(body *detector.BodyLandmarks) string {
	left := body.Points[detector.PoseLeftWrist].Visibility > WristVisibility
	right := body.Points[detector.PoseRightWrist].Visibility > WristVisibility

	switch {
	case left && right:
		return ArmsBoth
	case left:
		return ArmsLeftOnly
	case right:
		return ArmsRightOnly
	default:
		return ArmsNone
	}
}
