package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/abhinaya/internal/capture"
	"github.com/ayusman/abhinaya/internal/log"
)

// runPipeline is the tick loop. Each tick reads one frame and, while the
// scene is active, runs one fusion pass on it.
//
// The loop starts at IdleFPS. Motion or a person in the last snapshot
// switches it to ActiveFPS; after IdleHold with neither it drops back.
// Passes never overlap because the loop is a single goroutine and Process
// holds passMu.
func (a *App) runPipeline(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / IdleFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			if rate, changed := a.tick(now); changed {
				a.camera.SetFPS(rate)
				ticker.Reset(time.Second / time.Duration(rate))
			}
		}
	}
}

// tick handles one frame and returns the rate the loop should run at and
// whether it changed.
func (a *App) tick(now time.Time) (int, bool) {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			log.Debug("no frame", "error", err)
		} else {
			log.Warn("reading frame", "error", err)
		}
		return 0, false
	}
	defer frame.Close()

	motion, changedPct := a.motion.Detect(frame)
	active, changed := a.activity.Observe(motion, a.present(), now)
	if changed {
		log.Info("activity changed", "active", active, "motion_pct", changedPct)
	}

	if active {
		a.Process(frame)
		a.publishFrame(frame)
	}

	if !changed {
		return 0, false
	}
	if active {
		return ActiveFPS, true
	}
	return IdleFPS, true
}

// present reports whether the last snapshot saw a person or a hand.
func (a *App) present() bool {
	snap := a.Latest()
	return len(snap.People) > 0 || snap.Hands > 0
}

func (a *App) publishFrame(frame *capture.Frame) {
	a.mu.RLock()
	subs := a.frameSubs
	a.mu.RUnlock()

	for _, fn := range subs {
		fn(frame.Mat)
	}
}
