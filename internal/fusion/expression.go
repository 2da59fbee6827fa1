package fusion

import (
	"math"

	"github.com/ayusman/abhinaya/internal/detector"
)

// Expression heuristic labels.
const (
	ExpressionConfusedBrow   = "Confused? (Brow)"
	ExpressionConfusedFurrow = "Confused (Furrow)"
	ExpressionHappy          = "Happy"
	ExpressionSurprised      = "Surprised"
	ExpressionNeutral        = "Neutral"

	// Scanning is shown for a body with no matched face.
	Scanning = "Scanning..."
)

// Empirical blendshape thresholds.
const (
	browAsymmetryThreshold = 0.4
	furrowThreshold        = 0.5
	squintThreshold        = 0.3
	furrowSmileCeiling     = 0.2
	smileThreshold         = 0.5
	jawOpenThreshold       = 0.5
)

// Expression is the blendshape reading of one face.
type Expression struct {
	Label     string  `json:"label"`
	Squinting bool    `json:"squinting"`
	Confused  bool    `json:"confused"`
	Smile     float64 `json:"smile"`
	Squint    float64 `json:"squint"`
	Furrow    float64 `json:"furrow"`
	Asymmetry float64 `json:"asymmetry"`
}

// AnalyzeExpression applies the confusion, squint and label heuristics to a
// face's blendshapes. Missing categories score 0.
func AnalyzeExpression(face *detector.FaceLandmarks) Expression {
	e := Expression{
		Asymmetry: math.Abs(face.Score(detector.BrowOuterUpLeft) - face.Score(detector.BrowOuterUpRight)),
		Furrow: (face.Score(detector.BrowDownLeft) +
			face.Score(detector.BrowDownRight) +
			face.Score(detector.BrowInnerUp)) / 3,
		Squint: (face.Score(detector.EyeSquintLeft) + face.Score(detector.EyeSquintRight)) / 2,
		Smile:  (face.Score(detector.MouthSmileLeft) + face.Score(detector.MouthSmileRight)) / 2,
	}

	e.Squinting = e.Squint > squintThreshold
	furrowed := e.Furrow > furrowThreshold && e.Squinting && e.Smile < furrowSmileCeiling
	e.Confused = e.Asymmetry > browAsymmetryThreshold || furrowed

	switch {
	case e.Asymmetry > browAsymmetryThreshold:
		e.Label = ExpressionConfusedBrow
	case furrowed:
		e.Label = ExpressionConfusedFurrow
	case e.Smile > smileThreshold:
		e.Label = ExpressionHappy
	case face.Score(detector.JawOpen) > jawOpenThreshold:
		e.Label = ExpressionSurprised
	default:
		e.Label = ExpressionNeutral
	}
	return e
}
