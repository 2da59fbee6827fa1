package pointer

import (
	"errors"
	"math"
	"testing"

	"github.com/ayusman/abhinaya/internal/detector"
)

type fakeTarget struct {
	resolve   bool
	err       error
	activated []Handle
	followed  int
}

func (f *fakeTarget) ResolveTarget(x, y float64) (Handle, bool) {
	if !f.resolve {
		return Handle{}, false
	}
	return Handle{ID: "btn-start", X: x, Y: y}, true
}

func (f *fakeTarget) Activate(h Handle) error {
	f.activated = append(f.activated, h)
	return f.err
}

func (f *fakeTarget) Follow(x, y float64) { f.followed++ }

// hand returns a single-hand frame with the wrist at (x, y).
func hand(x, y float64, pinch bool) []detector.HandLandmarks {
	if pinch {
		return []detector.HandLandmarks{detector.PinchLandmarks(x, y)}
	}
	h := detector.OpenPalmLandmarks()
	dx, dy := x-h.Points[detector.Wrist].X, y-h.Points[detector.Wrist].Y
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
	return []detector.HandLandmarks{h}
}

func near(a, b Point) bool {
	return math.Abs(a.X-b.X) < 1e-6 && math.Abs(a.Y-b.Y) < 1e-6
}

func newController(latch bool) *Controller {
	opts := DefaultOptions(1000, 800)
	opts.LatchSuppressedPinch = latch
	return NewController(opts, nil)
}

func TestController_ClickSequence(t *testing.T) {
	frames := []struct {
		ts        int64
		pinch     bool
		wantClick bool
	}{
		{0, false, false},
		{100, true, true}, // rising edge, no previous click
		{200, true, false},
		{300, false, false},
		{400, true, false}, // rising edge inside the cooldown
		{700, true, true},  // still held, cooldown over
	}

	c := newController(true)
	clicks := 0
	for i, f := range frames {
		_, act := c.Update(hand(0.5, 0.5, f.pinch), f.ts)
		if (act != nil) != f.wantClick {
			t.Errorf("frame %d (ts %d): click = %v, want %v", i+1, f.ts, act != nil, f.wantClick)
		}
		if act != nil {
			clicks++
			if act.Timestamp != f.ts {
				t.Errorf("frame %d: activation ts = %d, want %d", i+1, act.Timestamp, f.ts)
			}
		}
	}
	if clicks != 2 {
		t.Errorf("clicks = %d, want 2", clicks)
	}
}

func TestController_HeldPinchClicksOnce(t *testing.T) {
	c := newController(true)
	clicks := 0
	for ts := int64(0); ts <= 3000; ts += 100 {
		if _, act := c.Update(hand(0.5, 0.5, true), ts); act != nil {
			clicks++
		}
	}
	if clicks != 1 {
		t.Errorf("clicks during one long pinch = %d, want 1", clicks)
	}
}

func TestController_NoLatch(t *testing.T) {
	c := newController(false)
	seq := []struct {
		ts    int64
		pinch bool
	}{{0, false}, {100, true}, {200, false}, {400, true}, {700, true}}

	clicks := 0
	for _, f := range seq {
		if _, act := c.Update(hand(0.5, 0.5, f.pinch), f.ts); act != nil {
			clicks++
		}
	}
	if clicks != 1 {
		t.Errorf("clicks = %d, want 1: a suppressed edge must not fire later", clicks)
	}

	// A fresh edge after the cooldown fires
	c.Update(hand(0.5, 0.5, false), 800)
	if _, act := c.Update(hand(0.5, 0.5, true), 900); act == nil {
		t.Error("new pinch after cooldown should click")
	}
}

func TestController_EdgeFlagRecordedDuringCooldown(t *testing.T) {
	c := newController(true)
	c.Update(hand(0.5, 0.5, true), 0)

	state, _ := c.Update(hand(0.5, 0.5, true), 100)
	if !state.Pinching || !state.WasPinching {
		t.Errorf("state = %+v, want pinching after pinching", state)
	}

	state, _ = c.Update(hand(0.5, 0.5, false), 200)
	if state.Pinching || !state.WasPinching {
		t.Errorf("state = %+v, want released after pinching", state)
	}
}

func TestController_Tracking(t *testing.T) {
	c := newController(true)

	if c.Cursor().State != Idle {
		t.Fatal("new controller should be idle")
	}

	state, _ := c.Update(hand(0.25, 0.5, false), 0)
	if state.State != Tracking {
		t.Fatalf("State = %v, want tracking", state.State)
	}
	if !near(state.Raw, Point{X: 750, Y: 400}) {
		t.Errorf("Raw = %+v, want mirrored (750, 400)", state.Raw)
	}
	if state.Smoothed != state.Raw {
		t.Errorf("Smoothed = %+v, want reset to raw on first detection", state.Smoothed)
	}

	state, _ = c.Update(hand(0.35, 0.5, false), 33)
	// raw x = 650; smoothed = 750 + 0.15*(650-750) = 735
	if math.Abs(state.Smoothed.X-735) > 1e-6 {
		t.Errorf("Smoothed.X = %f, want 735", state.Smoothed.X)
	}

	state, _ = c.Update(nil, 66)
	if state.State != Idle || state.Pinching || state.WasPinching {
		t.Errorf("state after losing the hand = %+v", state)
	}

	// Re-entry snaps to the new raw position instead of easing from the old one
	state, _ = c.Update(hand(0.9, 0.1, false), 99)
	if !near(state.Smoothed, Point{X: 100, Y: 80}) {
		t.Errorf("Smoothed = %+v, want (100, 80)", state.Smoothed)
	}
}

func TestController_SmoothingConverges(t *testing.T) {
	c := newController(true)
	c.Update(hand(0.9, 0.9, false), 0) // raw (100, 720)

	target := Point{X: 500, Y: 400}
	prevDX := math.Abs(100 - target.X)
	prevDY := math.Abs(720 - target.Y)

	for i := 1; i <= 200; i++ {
		state, _ := c.Update(hand(0.5, 0.5, false), int64(i*33))
		dx := state.Smoothed.X - target.X
		dy := state.Smoothed.Y - target.Y

		if dx > 1e-6 || dy < -1e-6 {
			t.Fatalf("tick %d overshot: smoothed = %+v", i, state.Smoothed)
		}
		if math.Abs(dx) > prevDX+1e-9 || math.Abs(dy) > prevDY+1e-9 {
			t.Fatalf("tick %d moved away from target", i)
		}
		prevDX, prevDY = math.Abs(dx), math.Abs(dy)
	}
	if prevDX > 1e-6 || prevDY > 1e-6 {
		t.Errorf("did not converge: remaining %f, %f", prevDX, prevDY)
	}
}

func TestController_LosingHandClearsPinch(t *testing.T) {
	c := newController(true)
	c.Update(hand(0.5, 0.5, true), 0) // click
	c.Update(hand(0.5, 0.5, true), 100)
	c.Update(nil, 200)

	// The returning pinch is a new edge, but the cooldown still holds
	if _, act := c.Update(hand(0.5, 0.5, true), 300); act != nil {
		t.Error("click inside the cooldown")
	}
	if _, act := c.Update(hand(0.5, 0.5, true), 500); act == nil {
		t.Error("latched pinch should click once the cooldown ends")
	}
}

func TestController_Dispatch(t *testing.T) {
	target := &fakeTarget{resolve: true, err: errors.New("detached")}
	c := NewController(DefaultOptions(1000, 800), target)

	c.Update(hand(0.5, 0.5, false), 0)
	_, act := c.Update(hand(0.5, 0.5, true), 100)
	if act == nil {
		t.Fatal("expected a click")
	}
	if act.Target != "btn-start" {
		t.Errorf("Target = %q, want btn-start", act.Target)
	}
	if len(target.activated) != 1 || target.activated[0].X != act.X {
		t.Errorf("activated = %+v", target.activated)
	}
	if target.followed != 2 {
		t.Errorf("followed = %d, want one per tracking frame", target.followed)
	}

	miss := &fakeTarget{}
	c = NewController(DefaultOptions(1000, 800), miss)
	c.Update(hand(0.5, 0.5, false), 700)
	_, act = c.Update(hand(0.5, 0.5, true), 800)
	if act == nil || act.Target != "" {
		t.Errorf("activation = %+v, want one with no target", act)
	}
	if len(miss.activated) != 0 {
		t.Error("nothing should be activated when no target resolves")
	}
}

func TestController_Reset(t *testing.T) {
	c := newController(true)
	c.Update(hand(0.5, 0.5, true), 1000)
	c.Reset()

	if c.Cursor() != (CursorState{}) {
		t.Errorf("Cursor() after Reset = %+v", c.Cursor())
	}
	// Click history is gone, so an immediate pinch clicks
	if _, act := c.Update(hand(0.5, 0.5, true), 1100); act == nil {
		t.Error("pinch after Reset should click")
	}
}

func TestState_String(t *testing.T) {
	if Idle.String() != "idle" || Tracking.String() != "tracking" {
		t.Error("unexpected state names")
	}
	b, _ := Tracking.MarshalText()
	if string(b) != "tracking" {
		t.Errorf("MarshalText() = %s", b)
	}

	var s State
	if err := s.UnmarshalText([]byte("tracking")); err != nil || s != Tracking {
		t.Errorf("UnmarshalText(tracking) = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("hovering")); err == nil {
		t.Error("UnmarshalText(hovering) should fail")
	}
}
