// Package app runs an abhinaya session: it reads the camera, runs one fusion
// pass per tick and publishes the resulting snapshot.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/cadence"
	"github.com/ayusman/abhinaya/internal/capture"
	"github.com/ayusman/abhinaya/internal/classify"
	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/fusion"
	"github.com/ayusman/abhinaya/internal/gesture"
	"github.com/ayusman/abhinaya/internal/log"
	"github.com/ayusman/abhinaya/internal/pointer"
	"github.com/ayusman/abhinaya/internal/store"
)

// Tick loop timing.
const (
	// IdleFPS is the tick rate when nothing moves and nobody is present.
	IdleFPS = 5
	// ActiveFPS is the tick rate while someone is in view.
	ActiveFPS = 15
	// IdleHold is how long the loop stays active after the last motion or person.
	IdleHold = 2 * time.Second
)

// Config holds the collaborators and tuning of an App. Nil collaborators get
// defaults in New.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	// NewDetector loads the detector when Detector is nil. It defaults to
	// the MediaPipe service.
	NewDetector func() (detector.Detector, error)
	Accessory   classify.AccessoryClassifier
	Expression  classify.ExpressionClassifier
	Rasterizer  classify.Rasterizer
	// Target receives pinch clicks; nil reports clicks without dispatching them.
	Target pointer.HitTester
	Store  *store.Store
	Clock  *capture.FrameClock

	CameraID        int
	PoseEvery       int
	ExclusiveMatch  bool
	MotionThreshold float64
	Classify        classify.Options
	Pointer         pointer.Options
}

// Status is the user-facing pipeline state.
type Status struct {
	Text string `json:"text"`
	// Blocking is set when a detector is unavailable and no fusion can happen.
	Blocking bool `json:"blocking"`
}

// Snapshot is the published result of one fusion pass.
type Snapshot struct {
	Seq        uint64                `json:"seq"`
	Timestamp  int64                 `json:"timestamp"`
	People     []fusion.PersonRecord `json:"people"`
	Faces      int                   `json:"faces"`
	Hands      int                   `json:"hands"`
	Gesture    string                `json:"gesture,omitempty"`
	Cursor     pointer.CursorState   `json:"cursor"`
	Activation *pointer.Activation   `json:"activation,omitempty"`
	Status     Status                `json:"status"`
	// Skeleton is the pose of the primary person, drawn by the kiosk overlay.
	Skeleton *detector.BodyLandmarks `json:"skeleton,omitempty"`
}

// App is the session owner. The scheduler cache, classifier cache and
// cursor state live here for exactly one session at a time.
type App struct {
	config     Config
	camera     capture.Camera
	detector   detector.Detector
	clock      *capture.FrameClock
	motion     *capture.MotionDetector
	activity   *capture.Activity
	scheduler  *cadence.Scheduler
	throttle   *classify.Throttle
	controller *pointer.Controller
	recognizer *gesture.Recognizer

	// passMu serializes fusion passes so one never starts before the
	// previous one's mutations are applied.
	passMu sync.Mutex

	// loadErr is why the detector could not be loaded. It blocks every
	// session of this App.
	loadErr error

	mu        sync.RWMutex
	enabled   bool
	blocked   error
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	session   *store.Session
	frames    int64
	clicks    int64
	seq       uint64
	latest    Snapshot
	listeners []func(Snapshot)
	frameSubs []func(*gocv.Mat)
}

// New creates an App. Without a configured detector it loads one with
// config.NewDetector. When that fails the App stays blocked: its status
// carries the error and Start refuses to run a session.
func New(config Config) *App {
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = 1.0 // 1% pixel change
	}
	if config.Camera == nil {
		config.Camera = capture.NewCamera(config.CameraID)
	}
	if config.Clock == nil {
		config.Clock = capture.NewFrameClock()
	}
	if config.Rasterizer == nil {
		config.Rasterizer = classify.GocvRasterizer{}
	}
	if config.NewDetector == nil {
		config.NewDetector = newMediaPipe
	}
	var loadErr error
	if config.Detector == nil {
		config.Detector, loadErr = config.NewDetector()
		if loadErr != nil {
			log.Error("detector not available", "error", loadErr)
			config.Detector = nil
		}
	}

	a := &App{
		config:     config,
		camera:     config.Camera,
		detector:   config.Detector,
		clock:      config.Clock,
		motion:     capture.NewMotionDetector(config.MotionThreshold),
		activity:   capture.NewActivity(IdleHold),
		scheduler:  cadence.New(config.Detector, config.PoseEvery),
		throttle:   classify.NewThrottle(config.Accessory, config.Expression, config.Rasterizer, config.Classify),
		controller: pointer.NewController(config.Pointer, config.Target),
		recognizer: gesture.NewRecognizer(config.Pointer.PinchThreshold),
		loadErr:    loadErr,
		enabled:    true,
		blocked:    loadErr,
	}
	a.latest.Status = a.idleStatus()
	return a
}

func newMediaPipe() (detector.Detector, error) {
	mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig())
	if err != nil {
		return nil, err
	}
	log.Info("using mediapipe detectors")
	return mp, nil
}

// idleStatus is the status shown while no session runs.
func (a *App) idleStatus() Status {
	if a.loadErr != nil {
		return Status{Text: fusion.StatusError(a.loadErr), Blocking: true}
	}
	return Status{Text: fusion.StatusReady}
}

// SetEnabled pauses or resumes fusion without closing the camera.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether fusion is running on each tick.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Subscribe registers fn to receive every snapshot. fn runs on the tick
// goroutine and must not block.
func (a *App) Subscribe(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// SubscribeFrames registers fn to see each processed frame before it is
// released. fn must not keep the Mat.
func (a *App) SubscribeFrames(fn func(*gocv.Mat)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameSubs = append(a.frameSubs, fn)
}

// Latest returns the most recent snapshot.
func (a *App) Latest() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Status returns the current status line.
func (a *App) Status() Status {
	return a.Latest().Status
}

// Running reports whether a session is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done != nil
}

// Session returns the stored session row of the running session, if any.
func (a *App) Session() *store.Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// Start opens the camera and begins a new session. It is a no-op when a
// session is already running.
func (a *App) Start() error {
	a.passMu.Lock()
	defer a.passMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done != nil {
		return nil
	}
	if a.loadErr != nil {
		return fmt.Errorf("load detector: %w", a.loadErr)
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(IdleFPS)

	a.resetSession()

	if a.config.Store != nil {
		sess, err := a.config.Store.Sessions().Start()
		if err != nil {
			log.Warn("session not recorded", "error", err)
		}
		a.session = sess
	}

	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.done = make(chan struct{})
	go a.runPipeline(a.ctx, a.done)

	log.Info("session started", "camera", a.config.CameraID)
	return nil
}

// Stop ends the session. The tick loop has exited when Stop returns, and
// every per-session cache is cleared so nothing reaches the next session.
func (a *App) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.ctx, a.cancel, a.done = nil, nil, nil
	a.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done

	if err := a.camera.Close(); err != nil {
		log.Warn("closing camera", "error", err)
	}

	a.passMu.Lock()
	a.mu.Lock()
	sess, frames, clicks := a.session, a.frames, a.clicks
	a.session = nil
	a.resetSession()
	a.latest = Snapshot{Status: a.idleStatus()}
	a.mu.Unlock()
	a.passMu.Unlock()

	if sess != nil {
		if err := a.config.Store.Sessions().Finish(sess.ID, frames, clicks); err != nil {
			log.Warn("session not finished", "session", sess.ID, "error", err)
		}
	}
	log.Info("session stopped", "frames", frames, "clicks", clicks)
}

// resetSession clears the per-session state. Caller holds a.passMu and a.mu.
func (a *App) resetSession() {
	a.controller.Reset()
	a.scheduler.Reset()
	a.throttle.Reset()
	a.clock.Reset()
	a.motion.Reset()
	a.activity.Reset()
	a.frames, a.clicks = 0, 0
	a.blocked = a.loadErr
}

// Close stops any session and releases the detector, classifier pool and
// motion buffers.
func (a *App) Close() error {
	a.Stop()
	a.throttle.Close()
	a.motion.Close()
	if a.detector == nil {
		return nil
	}
	return a.detector.Close()
}

