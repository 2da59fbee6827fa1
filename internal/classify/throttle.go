package classify

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/detector"
	"github.com/ayusman/abhinaya/internal/log"
)

// Default classifier intervals.
const (
	DefaultAccessoryInterval  = time.Second
	DefaultExpressionInterval = 100 * time.Millisecond
)

// Options configures a Throttle.
type Options struct {
	AccessoryInterval  time.Duration
	ExpressionInterval time.Duration
	// Workers > 0 runs classifiers on a pool; results land on the next Drain.
	Workers int
	// Queue bounds jobs waiting for a pool worker.
	Queue int
}

// Entry is the cached classifier state of one face identity.
type Entry struct {
	HasAccessory   bool   `json:"has_accessory"`
	AccessoryKnown bool   `json:"accessory_known"`
	AccessoryAt    int64  `json:"accessory_at"`
	Emotion        string `json:"emotion,omitempty"`
	EmotionAt      int64  `json:"emotion_at"`

	accessoryTried  bool
	expressionTried bool
}

// Throttle rate-limits the two classifiers per face identity and caches
// their latest answers. Identities are face indices within the current
// frame, so the cache assumes index i is the same person across frames.
type Throttle struct {
	accessory  AccessoryClassifier
	expression ExpressionClassifier
	raster     Rasterizer
	opts       Options
	pool       *Pool

	mu         sync.Mutex
	entries    map[int]*Entry
	generation uint64
}

// NewThrottle returns a Throttle. Either classifier may be nil to disable it.
func NewThrottle(accessory AccessoryClassifier, expression ExpressionClassifier, raster Rasterizer, opts Options) *Throttle {
	if opts.AccessoryInterval <= 0 {
		opts.AccessoryInterval = DefaultAccessoryInterval
	}
	if opts.ExpressionInterval <= 0 {
		opts.ExpressionInterval = DefaultExpressionInterval
	}

	t := &Throttle{
		accessory:  accessory,
		expression: expression,
		raster:     raster,
		opts:       opts,
		entries:    make(map[int]*Entry),
	}
	if opts.Workers > 0 {
		t.pool = NewPool(opts.Workers, opts.Queue, t.run)
	}
	return t
}

// Classify refreshes the identity's cache entry for whichever classifiers
// are due at ts (milliseconds) and returns the entry. A classifier is due on
// its first call and then once more than its interval has passed since its
// last invocation. Failed invocations still count as invocations and leave
// the cached value untouched.
func (t *Throttle) Classify(ctx context.Context, frame *gocv.Mat, identity int, face *detector.FaceLandmarks, ts int64) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[identity]
	if e == nil {
		e = &Entry{}
		t.entries[identity] = e
	}

	dueAccessory := t.accessory != nil && due(e.accessoryTried, e.AccessoryAt, ts, t.opts.AccessoryInterval)
	dueExpression := t.expression != nil && due(e.expressionTried, e.EmotionAt, ts, t.opts.ExpressionInterval)
	if !dueAccessory && !dueExpression {
		return *e
	}

	if dueAccessory {
		e.accessoryTried, e.AccessoryAt = true, ts
	}
	if dueExpression {
		e.expressionTried, e.EmotionAt = true, ts
	}

	raster, err := t.raster.Rasterize(frame, PaddedBox(face.Bounds(), RegionPadding))
	if err != nil {
		log.Warn("face crop failed", "identity", identity, "error", err)
		return *e
	}

	for _, kind := range dueKinds(dueAccessory, dueExpression) {
		job := Job{Identity: identity, Kind: kind, Raster: raster, Generation: t.generation}
		if t.pool != nil {
			if !t.pool.Submit(job) {
				log.Debug("classifier busy, skipping", "classifier", kind, "identity", identity)
			}
			continue
		}
		t.apply(e, t.run(ctx, job))
	}
	return *e
}

func due(tried bool, last, now int64, interval time.Duration) bool {
	return !tried || now-last > interval.Milliseconds()
}

func dueKinds(accessory, expression bool) []string {
	kinds := make([]string, 0, 2)
	if accessory {
		kinds = append(kinds, KindAccessory)
	}
	if expression {
		kinds = append(kinds, KindExpression)
	}
	return kinds
}

// run invokes one classifier. It holds no lock so pool workers can call it.
func (t *Throttle) run(ctx context.Context, job Job) Result {
	res := Result{Job: job}

	switch job.Kind {
	case KindAccessory:
		categories, err := t.accessory.ClassifyAccessory(ctx, job.Raster)
		if err != nil {
			res.Err = &InvocationError{Classifier: job.Kind, Identity: job.Identity, Err: err}
			return res
		}
		res.HasAccessory = HasAccessory(categories)

	case KindExpression:
		scores, err := t.expression.ClassifyExpression(ctx, job.Raster)
		if err == nil {
			res.Emotion, err = ArgMaxEmotion(scores)
		}
		if err != nil {
			res.Err = &InvocationError{Classifier: job.Kind, Identity: job.Identity, Err: err}
		}
	}
	return res
}

// apply stores a successful result in e. Caller holds t.mu.
func (t *Throttle) apply(e *Entry, res Result) {
	if res.Err != nil {
		log.Warn("classifier call failed, keeping cached value", "classifier", res.Kind, "identity", res.Identity, "error", res.Err)
		return
	}

	switch res.Kind {
	case KindAccessory:
		e.HasAccessory = res.HasAccessory
		e.AccessoryKnown = true
	case KindExpression:
		e.Emotion = res.Emotion
	}
}

// Drain applies results finished by the pool since the last call. Call it
// at the start of a fusion pass, never during one. Results from before the
// last Reset are discarded.
func (t *Throttle) Drain() int {
	if t.pool == nil {
		return 0
	}
	results := t.pool.Collect()

	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, res := range results {
		if res.Generation != t.generation {
			continue
		}
		e := t.entries[res.Identity]
		if e == nil {
			e = &Entry{}
			t.entries[res.Identity] = e
		}
		t.apply(e, res)
		applied++
	}
	return applied
}

// Entry returns a copy of the cached entry for identity.
func (t *Throttle) Entry(identity int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[identity]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Reset drops every cached entry.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[int]*Entry)
	t.generation++
}

// Close stops the worker pool, if any.
func (t *Throttle) Close() {
	if t.pool != nil {
		t.pool.Close()
	}
}
