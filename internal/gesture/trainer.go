package gesture

import (
	"errors"
	"fmt"

	"github.com/ayusman/abhinaya/internal/detector"
)

// ErrNoSamples is returned by Train without any samples.
var ErrNoSamples = errors.New("gesture: no samples provided")

// Train averages the normalized landmarks of samples into a template.
func Train(name string, tolerance float64, samples ...detector.HandLandmarks) (*Template, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if name == "" {
		return nil, fmt.Errorf("gesture: template name is required")
	}

	var sum [detector.NumLandmarks]detector.Point3D
	for i := range samples {
		n := samples[i].Normalize()
		if degenerate(n) {
			return nil, fmt.Errorf("gesture: sample %d has no extent", i)
		}
		for j, p := range n.Points {
			sum[j].X += p.X
			sum[j].Y += p.Y
			sum[j].Z += p.Z
		}
	}

	count := float64(len(samples))
	landmarks := make([]detector.Point3D, detector.NumLandmarks)
	for j, p := range sum {
		landmarks[j] = detector.Point3D{X: p.X / count, Y: p.Y / count, Z: p.Z / count}
	}

	return &Template{Name: name, Landmarks: landmarks, Tolerance: tolerance}, nil
}

// degenerate reports a normalized hand whose middle knuckle sits on the
// wrist, which Normalize leaves unscaled.
func degenerate(n *detector.HandLandmarks) bool {
	return n == nil || detector.Distance3D(detector.Point3D{}, n.Points[detector.MiddleMCP]) < 1e-10
}
