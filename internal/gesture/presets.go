package gesture

import "github.com/ayusman/abhinaya/internal/detector"

type preset struct {
	name string
	hand detector.HandLandmarks
}

// presets are the built-in poses. Pinch is absent because it is decided by
// tip distance rather than by shape.
func presets() []preset {
	return []preset{
		{OpenPalm, detector.OpenPalmLandmarks()},
		{ThumbsUp, detector.ThumbsUpLandmarks()},
		{Point, PointLandmarks()},
		{Fist, FistLandmarks()},
	}
}

// FistLandmarks returns a closed hand with the thumb folded across the
// curled fingers.
func FistLandmarks() detector.HandLandmarks {
	h := detector.ThumbsUpLandmarks()
	h.Points[detector.ThumbMCP] = detector.Point3D{X: 0.58, Y: 0.70, Z: -0.01}
	h.Points[detector.ThumbIP] = detector.Point3D{X: 0.56, Y: 0.66, Z: -0.03}
	h.Points[detector.ThumbTip] = detector.Point3D{X: 0.53, Y: 0.66, Z: -0.04}
	return h
}

// PointLandmarks returns a fist with the index finger extended.
func PointLandmarks() detector.HandLandmarks {
	h := FistLandmarks()
	palm := detector.OpenPalmLandmarks()
	for _, i := range []int{detector.IndexMCP, detector.IndexPIP, detector.IndexDIP, detector.IndexTip} {
		h.Points[i] = palm.Points[i]
	}
	return h
}
