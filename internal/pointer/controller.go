// Package pointer turns one hand's landmarks into a smoothed screen cursor and
// debounced pinch clicks.
package pointer

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/log"
)

// State is the controller state.
type State int

const (
	// Idle means no hand is in view.
	Idle State = iota
	// Tracking means a hand drives the cursor.
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "tracking":
		*s = Tracking
	default:
		return fmt.Errorf("pointer: unknown state %q", b)
	}
	return nil
}

// Default tuning.
const (
	DefaultSmoothing      = 0.15
	DefaultPinchThreshold = 0.045
	DefaultCooldown       = 500 * time.Millisecond
)

// Options configures a Controller.
type Options struct {
	ScreenWidth  float64
	ScreenHeight float64

	// Smoothing is the weight of each new sample in the moving average.
	Smoothing float64
	// PinchThreshold is the thumb-to-index tip distance below which the hand pinches.
	PinchThreshold float64
	// Cooldown is the minimum time between two clicks.
	Cooldown time.Duration
	// LatchSuppressedPinch keeps a pinch that started inside the cooldown
	// armed while it is held, so it clicks once the cooldown ends. When false
	// such a pinch never clicks.
	LatchSuppressedPinch bool
}

// DefaultOptions returns the standard tuning for a screen of the given size.
func DefaultOptions(width, height float64) Options {
	return Options{
		ScreenWidth:          width,
		ScreenHeight:         height,
		Smoothing:            DefaultSmoothing,
		PinchThreshold:       DefaultPinchThreshold,
		Cooldown:             DefaultCooldown,
		LatchSuppressedPinch: true,
	}
}

// Point is a screen position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CursorState is a snapshot of the controller.
type CursorState struct {
	State       State `json:"state"`
	Raw         Point `json:"raw"`
	Smoothed    Point `json:"smoothed"`
	Pinching    bool  `json:"pinching"`
	WasPinching bool  `json:"was_pinching"`
	LastClick   int64 `json:"last_click"`
}

// Activation is a synthetic click at the smoothed cursor.
type Activation struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
	// Target is the resolved element ID, empty when nothing actionable was hit.
	Target string `json:"target,omitempty"`
}

// Controller is the pointer state machine. It is safe for concurrent use,
// but Update calls must come from one fusion loop.
type Controller struct {
	opts   Options
	target HitTester

	mu        sync.Mutex
	cursor    CursorState
	prevPinch bool
	clicked   bool
	armed     bool
}

// NewController returns an idle controller. target may be nil, in which case
// clicks are still reported but not dispatched.
func NewController(opts Options, target HitTester) *Controller {
	def := DefaultOptions(opts.ScreenWidth, opts.ScreenHeight)
	if opts.Smoothing <= 0 || opts.Smoothing > 1 {
		opts.Smoothing = def.Smoothing
	}
	if opts.PinchThreshold <= 0 {
		opts.PinchThreshold = def.PinchThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = def.Cooldown
	}
	return &Controller{opts: opts, target: target}
}

// Update advances the state machine with this frame's hands at ts
// (milliseconds). Only the first hand is used. It returns the new cursor
// state and the activation fired on this frame, if any.
func (c *Controller) Update(hands []detector.HandLandmarks, ts int64) (CursorState, *Activation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(hands) == 0 {
		if c.cursor.State == Tracking {
			log.Debug("pointer idle", "ts", ts)
		}
		c.cursor.State = Idle
		c.cursor.Pinching = false
		c.cursor.WasPinching = false
		c.prevPinch = false
		c.armed = false
		return c.cursor, nil
	}

	hand := &hands[0]
	wrist := hand.Points[detector.Wrist]
	raw := Point{
		X: (1 - wrist.X) * c.opts.ScreenWidth,
		Y: wrist.Y * c.opts.ScreenHeight,
	}
	c.cursor.Raw = raw

	if c.cursor.State == Idle {
		c.cursor.State = Tracking
		c.cursor.Smoothed = raw
		log.Debug("pointer tracking", "ts", ts)
	} else {
		a := c.opts.Smoothing
		c.cursor.Smoothed.X += a * (raw.X - c.cursor.Smoothed.X)
		c.cursor.Smoothed.Y += a * (raw.Y - c.cursor.Smoothed.Y)
	}

	if f, ok := c.target.(Follower); ok {
		f.Follow(c.cursor.Smoothed.X, c.cursor.Smoothed.Y)
	}

	prev := c.prevPinch
	pinching := detector.Distance3D(hand.Points[detector.ThumbTip], hand.Points[detector.IndexTip]) < c.opts.PinchThreshold

	switch {
	case !pinching:
		c.armed = false
	case !prev:
		c.armed = true
	case !c.opts.LatchSuppressedPinch:
		c.armed = false
	}

	// The edge flag is recorded whether or not a click may fire
	c.prevPinch = pinching
	c.cursor.Pinching = pinching
	c.cursor.WasPinching = prev

	var act *Activation
	if c.armed && c.cooledDown(ts) {
		c.armed = false
		c.clicked = true
		c.cursor.LastClick = ts
		act = c.dispatch(ts)
	}

	return c.cursor, act
}

func (c *Controller) cooledDown(ts int64) bool {
	return !c.clicked || ts-c.cursor.LastClick >= c.opts.Cooldown.Milliseconds()
}

// dispatch resolves and activates the element under the smoothed cursor.
// Caller holds c.mu.
func (c *Controller) dispatch(ts int64) *Activation {
	act := &Activation{X: c.cursor.Smoothed.X, Y: c.cursor.Smoothed.Y, Timestamp: ts}
	if c.target == nil {
		return act
	}

	h, ok := c.target.ResolveTarget(act.X, act.Y)
	if !ok {
		log.Debug("click hit nothing", "x", act.X, "y", act.Y)
		return act
	}
	act.Target = h.ID

	if err := c.target.Activate(h); err != nil {
		log.Warn("activation failed", "target", h.ID, "error", err)
	}
	return act
}

// Cursor returns the current state.
func (c *Controller) Cursor() CursorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Reset returns to Idle and forgets the click history. Call it when the
// video source stops.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursor = CursorState{}
	c.prevPinch = false
	c.clicked = false
	c.armed = false
}
