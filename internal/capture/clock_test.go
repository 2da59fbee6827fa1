package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

// stubClock returns scripted wall-clock readings in milliseconds.
type stubClock struct {
	readings []int64
	i        int
}

func (s *stubClock) now() time.Time {
	ms := s.readings[s.i]
	if s.i < len(s.readings)-1 {
		s.i++
	}
	return time.UnixMilli(ms)
}

func TestFrameClock_Observe(t *testing.T) {
	// Mat is only compared for nil, never read.
	mat := &gocv.Mat{}
	frame := func(ts int64) *Frame { return &Frame{Mat: mat, Timestamp: ts} }

	wall := &stubClock{readings: []int64{100, 133, 120, 166, 200, 233}}
	clock := NewFrameClockWithNow(wall.now)

	tests := []struct {
		name      string
		frame     *Frame
		wantStamp int64
		wantFresh bool
	}{
		{"first frame is fresh", frame(0), 100, true},
		{"new source time", frame(33), 133, true},
		{"wall clock stepped back", frame(33), 133, false},
		{"stale frame", frame(33), 166, false},
		{"missing frame", nil, 200, false},
		{"next frame", frame(66), 233, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp, fresh := clock.Observe(tt.frame)
			if stamp != tt.wantStamp || fresh != tt.wantFresh {
				t.Errorf("Observe() = %d, %v; want %d, %v", stamp, fresh, tt.wantStamp, tt.wantFresh)
			}
		})
	}
}

func TestFrameClock_Reset(t *testing.T) {
	mat := &gocv.Mat{}
	wall := &stubClock{readings: []int64{500, 400, 600}}
	clock := NewFrameClockWithNow(wall.now)

	clock.Observe(&Frame{Mat: mat, Timestamp: 7})
	clock.Reset()

	stamp, fresh := clock.Observe(&Frame{Mat: mat, Timestamp: 7})
	if !fresh {
		t.Error("same source timestamp should be fresh after Reset")
	}
	if stamp != 500 {
		t.Errorf("stamp = %d, want 500 (monotonic across Reset)", stamp)
	}
}
