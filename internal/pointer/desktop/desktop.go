// Package desktop drives the operating system pointer with pinch clicks.
// It needs the native input libraries, so only the binary imports it.
package desktop

import (
	"github.com/go-vgo/robotgo"

	"github.com/ayusman/abhinaya/internal/pointer"
)

// HandleID is the handle ID used for clicks on the native desktop.
const HandleID = "desktop"

// Target drives the operating system pointer. The whole screen is one
// actionable surface, so every position resolves.
type Target struct{}

// New returns a Target.
func New() *Target {
	return &Target{}
}

// ScreenSize returns the main display size in pixels.
func ScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}

// ResolveTarget implements pointer.HitTester.
func (d *Target) ResolveTarget(x, y float64) (pointer.Handle, bool) {
	return pointer.Handle{ID: HandleID, X: x, Y: y}, true
}

// Activate moves the OS pointer to the handle and left-clicks.
func (d *Target) Activate(h pointer.Handle) error {
	robotgo.Move(int(h.X), int(h.Y))
	robotgo.Click("left")
	return nil
}

// Follow implements pointer.Follower.
func (d *Target) Follow(x, y float64) {
	robotgo.Move(int(x), int(y))
}
