package detector

import (
	"errors"
	"os/exec"
	"testing"

	"gocv.io/x/gocv"
)

// newScriptedDetector returns a detector whose service is the shell script
// body, counting how often it was started.
func newScriptedDetector(body string, starts *int) *MediaPipeDetector {
	d := &MediaPipeDetector{config: DefaultConfig()}
	d.command = func() *exec.Cmd {
		*starts++
		return exec.Command("sh", "-c", body)
	}
	return d
}

func TestMediaPipe_RestartsAfterBrokenStream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test")
	}

	frame := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer frame.Close()

	starts := 0
	d := newScriptedDetector("exit 0", &starts)
	defer d.Close()

	for i := int64(1); i <= 2; i++ {
		_, err := d.DetectPose(&frame, i)
		var inv *InvocationError
		if !errors.As(err, &inv) || inv.Detector != NamePose {
			t.Fatalf("request %d error = %v, want pose InvocationError", i, err)
		}
		if d.started {
			t.Fatalf("request %d left a dead service marked as started", i)
		}
	}
	if starts != 2 {
		t.Errorf("service started %d times, want 2", starts)
	}
}

func TestMediaPipe_ServiceErrorKeepsService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test")
	}

	frame := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer frame.Close()

	starts := 0
	d := newScriptedDetector(`printf '{"error":"bad frame"}\n'; cat >/dev/null`, &starts)

	_, err := d.DetectHands(&frame, 1)
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("DetectHands() error = %v, want service error", err)
	}
	if !d.started {
		t.Error("a service-reported error should not stop the service")
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if starts != 1 {
		t.Errorf("service started %d times, want 1", starts)
	}
}
