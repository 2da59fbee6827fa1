// Package classify runs the secondary face-region classifiers (accessory and
// expression) behind a per-face rate limiter with a result cache.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Classifier names used in logs and errors.
const (
	KindAccessory  = "accessory"
	KindExpression = "expression"
)

// EmotionLabels is the output order of the expression classifier.
var EmotionLabels = [...]string{"Neutral", "Happy", "Surprise", "Sad", "Angry", "Disgust", "Fear", "Contempt"}

// accessoryKeywords are matched as substrings of lower-cased category labels.
var accessoryKeywords = []string{"sunglass", "spectacles", "eyeglasses", "glasses", "specs", "shades"}

// ErrBadScores is returned when an expression score vector has the wrong length.
var ErrBadScores = errors.New("classify: expression scores must have 8 entries")

// Category is one ranked label from the accessory classifier.
type Category struct {
	Label string  `msgpack:"label" json:"label"`
	Score float64 `msgpack:"score" json:"score"`
}

// AccessoryClassifier labels the 224x224 RGB face crop.
type AccessoryClassifier interface {
	ClassifyAccessory(ctx context.Context, r *Raster) ([]Category, error)
}

// ExpressionClassifier scores the 48x48 grayscale face crop over EmotionLabels.
type ExpressionClassifier interface {
	ClassifyExpression(ctx context.Context, r *Raster) ([]float32, error)
}

// InvocationError reports a failed classifier call for one face identity.
type InvocationError struct {
	Classifier string
	Identity   int
	Err        error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("classifier [%s] identity %d: %v", e.Classifier, e.Identity, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// HasAccessory reports whether any category names eyewear.
func HasAccessory(categories []Category) bool {
	for _, c := range categories {
		label := strings.ToLower(c.Label)
		for _, kw := range accessoryKeywords {
			if strings.Contains(label, kw) {
				return true
			}
		}
	}
	return false
}

// ArgMaxEmotion returns the label with the highest score. The first label
// wins ties.
func ArgMaxEmotion(scores []float32) (string, error) {
	if len(scores) != len(EmotionLabels) {
		return "", fmt.Errorf("%w: got %d", ErrBadScores, len(scores))
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return EmotionLabels[best], nil
}
