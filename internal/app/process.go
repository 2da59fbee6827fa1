package app

import (
	"context"
	"errors"

	"github.com/ayusman/abhinaya/internal/capture"
	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/fusion"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pointer"
	"github.com/ayusman/abhinaya/internal/store"
)

// Process runs one fusion pass over frame and publishes the snapshot. It
// returns false, with the previous snapshot, when the frame is missing or
// is the same picture as the last pass.
//
// The hand branch runs first and dispatches any click before pose and face
// are touched, so pointer latency never waits on the slower detectors.
//
// An unavailable detector blocks the session: that pass and every later one
// publish the error as a blocking status with no people and no clicks until
// the session is restarted.
func (a *App) Process(frame *capture.Frame) (Snapshot, bool) {
	a.passMu.Lock()
	defer a.passMu.Unlock()

	// Pool results land between passes, never inside one
	a.throttle.Drain()

	ts, fresh := a.clock.Observe(frame)
	if !fresh {
		return a.Latest(), false
	}
	if err := a.blockedBy(); err != nil {
		return a.publishBlocked(ts, err, nil), true
	}
	ctx := a.passContext()

	hands, handErr := a.scheduler.Hands(frame.Mat, ts)
	if err := findUnavailable(handErr); err != nil {
		return a.publishBlocked(ts, err, nil), true
	}
	cursor, act := a.controller.Update(hands, ts)
	if act != nil {
		a.recordActivation(act.X, act.Y, act.Target, act.Timestamp)
	}

	var label string
	if len(hands) > 0 {
		label, _ = a.recognizer.Recognize(&hands[0])
	}

	res, poseErr := a.scheduler.PoseAndFace(frame.Mat, ts)
	if err := findUnavailable(poseErr); err != nil {
		// The click of this pass was already dispatched
		return a.publishBlocked(ts, err, act), true
	}
	matches := fusion.Correlate(res.Bodies, res.Faces, a.config.ExclusiveMatch)

	regional := make(map[int]fusion.Regional)
	for _, face := range matches {
		if face == fusion.NoFace {
			continue
		}
		if _, done := regional[face]; done {
			continue
		}
		e := a.throttle.Classify(ctx, frame.Mat, face, &res.Faces[face], ts)
		regional[face] = fusion.Regional{
			HasAccessory:   e.HasAccessory,
			AccessoryKnown: e.AccessoryKnown,
			Emotion:        e.Emotion,
		}
	}

	records := fusion.Build(res.Bodies, res.Faces, matches, func(face int) fusion.Regional {
		return regional[face]
	})
	if len(hands) > 0 {
		fusion.AttachGesture(records, res.Bodies, &hands[0], label)
	}
	fusion.Rank(records)

	var skeleton *detector.BodyLandmarks
	if p := fusion.Primary(records); p != nil {
		body := res.Bodies[p.Identity]
		skeleton = &body
	}

	snap := Snapshot{
		Timestamp:  ts,
		People:     records,
		Skeleton:   skeleton,
		Faces:      len(res.Faces),
		Hands:      len(hands),
		Gesture:    label,
		Cursor:     cursor,
		Activation: act,
		Status:     Status{Text: fusion.StatusLine(len(res.Bodies), len(res.Faces), len(hands))},
	}
	return a.publish(snap), true
}

// publishBlocked marks the session blocked by err and publishes a snapshot
// carrying only the error and the click already dispatched this pass.
func (a *App) publishBlocked(ts int64, err error, act *pointer.Activation) Snapshot {
	a.mu.Lock()
	first := a.blocked == nil
	a.blocked = err
	a.mu.Unlock()
	if first {
		log.Error("detector unavailable, fusion stopped", "error", err)
	}

	a.controller.Reset()
	return a.publish(Snapshot{
		Timestamp:  ts,
		Cursor:     a.controller.Cursor(),
		Activation: act,
		Status:     Status{Text: fusion.StatusError(err), Blocking: true},
	})
}

// publish numbers snap, counts it against the session and hands it to the
// listeners.
func (a *App) publish(snap Snapshot) Snapshot {
	a.mu.Lock()
	a.seq++
	a.frames++
	if snap.Activation != nil {
		a.clicks++
	}
	snap.Seq = a.seq
	a.latest = snap
	listeners := append([]func(Snapshot){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return snap
}

func (a *App) blockedBy() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.blocked
}

func (a *App) passContext() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *App) recordActivation(x, y float64, target string, ts int64) {
	sess := a.Session()
	if sess == nil {
		log.Info("click", "x", x, "y", y, "target", target)
		return
	}

	logger := log.With("session", sess.ID)
	logger.Info("click", "x", x, "y", y, "target", target)
	err := a.config.Store.Activations().Record(&store.Activation{
		SessionID: sess.ID,
		X:         x,
		Y:         y,
		Target:    target,
		Timestamp: ts,
	})
	if err != nil {
		logger.Warn("activation not recorded", "error", err)
	}
}

// findUnavailable returns the innermost single error wrapping
// detector.ErrUnavailable, looking through joined errors.
func findUnavailable(errs ...error) error {
	for _, err := range errs {
		if err == nil || !errors.Is(err, detector.ErrUnavailable) {
			continue
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			if inner := findUnavailable(joined.Unwrap()...); inner != nil {
				return inner
			}
		}
		return err
	}
	return nil
}
