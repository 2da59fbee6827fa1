package pointer

import "errors"

// ErrNoTarget is returned when an activation has nothing to act on.
var ErrNoTarget = errors.New("pointer: no target")

// Handle identifies an actionable element resolved at a screen position.
type Handle struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// HitTester is implemented by the UI layer that owns the actionable elements.
// The controller never reaches into the UI beyond these two calls.
type HitTester interface {
	// ResolveTarget returns the actionable element under (x, y), preferring
	// an enclosing actionable control over the literal topmost element.
	ResolveTarget(x, y float64) (Handle, bool)
	// Activate issues a synthetic activation on the element.
	Activate(h Handle) error
}

// Follower is optionally implemented by a HitTester that wants the smoothed
// cursor on every tracking frame, such as one driving the OS pointer.
type Follower interface {
	Follow(x, y float64)
}
