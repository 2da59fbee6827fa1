package fusion

import "fmt"

// Fixed status lines.
const (
	StatusLooking = "Looking for people..."
	StatusReady   = "Models Ready. Start Camera."
)

// StatusLine summarizes detector counts for diagnostics.
func StatusLine(bodies, faces, hands int) string {
	if bodies == 0 {
		return StatusLooking
	}
	return fmt.Sprintf("Detecting: %d Person(s) | Faces: %d | Hands: %d", bodies, faces, hands)
}

// StatusError is the blocking status shown when a detector is unavailable.
func StatusError(err error) string {
	return "Error: " + err.Error()
}
