// Package cadence runs the perception detectors at their own rates: hands on
// every frame, pose and face on every Nth frame with the previous result
// held in between.
package cadence

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/log"
)

// DefaultEvery is the default pose/face cadence divisor.
const DefaultEvery = 2

// Result is the pose and face state for one fusion pass.
type Result struct {
	Bodies []detector.BodyLandmarks
	Faces  []detector.FaceLandmarks

	// PoseTS and FaceTS are the frame stamps the held results came from.
	PoseTS int64
	FaceTS int64

	// Refreshed is true when the detectors ran on this frame.
	Refreshed bool
}

// slot holds the last good result of one detector.
type slot[T any] struct {
	items []T
	ts    int64
	ok    bool
}

func (s *slot[T]) store(items []T, ts int64) {
	s.items = items
	s.ts = ts
	s.ok = true
}

// Scheduler owns the held detector results for one session.
// Calls are serialized, so each detector has at most one request in flight.
type Scheduler struct {
	det   detector.Detector
	every uint64

	mu    sync.Mutex
	frame uint64
	pose  slot[detector.BodyLandmarks]
	face  slot[detector.FaceLandmarks]
	hand  slot[detector.HandLandmarks]
}

// New returns a Scheduler running pose and face every `every` frames.
// Values below 1 fall back to DefaultEvery.
func New(det detector.Detector, every int) *Scheduler {
	if every < 1 {
		every = DefaultEvery
	}
	return &Scheduler{det: det, every: uint64(every)}
}

// Hands runs the hand detector on the frame. On failure the previous hands
// are returned together with the error.
func (s *Scheduler) Hands(frame *gocv.Mat, ts int64) ([]detector.HandLandmarks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hands, err := s.det.DetectHands(frame, ts)
	if err != nil {
		logFailure(detector.NameHand, ts, err)
		return s.hand.items, err
	}
	s.hand.store(hands, ts)
	return hands, nil
}

// PoseAndFace advances the frame counter and runs the pose and face
// detectors when the counter is a multiple of the cadence or when a detector
// has no result yet. Otherwise the held results are returned unchanged.
//
// A failing detector keeps its previous result; the other detector is still
// updated. The returned error joins the failures of this call.
func (s *Scheduler) PoseAndFace(frame *gocv.Mat, ts int64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame++
	due := s.frame%s.every == 0 || !s.pose.ok || !s.face.ok

	var errs []error
	if due {
		if bodies, err := s.det.DetectPose(frame, ts); err != nil {
			logFailure(detector.NamePose, ts, err)
			errs = append(errs, err)
		} else {
			s.pose.store(bodies, ts)
		}

		if faces, err := s.det.DetectFaces(frame, ts); err != nil {
			logFailure(detector.NameFace, ts, err)
			errs = append(errs, err)
		} else {
			s.face.store(faces, ts)
		}
	}

	return Result{
		Bodies:    s.pose.items,
		Faces:     s.face.items,
		PoseTS:    s.pose.ts,
		FaceTS:    s.face.ts,
		Refreshed: due,
	}, errors.Join(errs...)
}

// Frame returns the number of frames PoseAndFace has seen this session.
func (s *Scheduler) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Reset discards every held result and the frame counter.
// Call it when a session ends so nothing leaks into the next one.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frame = 0
	s.pose = slot[detector.BodyLandmarks]{}
	s.face = slot[detector.FaceLandmarks]{}
	s.hand = slot[detector.HandLandmarks]{}
}

func logFailure(name string, ts int64, err error) {
	if errors.Is(err, detector.ErrUnavailable) {
		log.Error("detector unavailable", "detector", name, "error", err)
		return
	}
	log.Warn("detector call failed, holding previous result", "detector", name, "ts", ts, "error", err)
}
