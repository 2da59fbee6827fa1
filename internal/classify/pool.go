package classify

import (
	"context"
	"sync"
)

// Job is one classifier request for one face identity.
type Job struct {
	Identity   int
	Kind       string
	Raster     *Raster
	Generation uint64
}

// Result is the outcome of a Job.
type Result struct {
	Job
	HasAccessory bool
	Emotion      string
	Err          error
}

type jobKey struct {
	identity int
	kind     string
}

// Pool runs classifier jobs on a fixed number of workers.
// At most one job per identity and kind is outstanding; a result counts as
// outstanding until it has been collected.
type Pool struct {
	run      func(context.Context, Job) Result
	jobs     chan Job
	results  chan Result
	capacity int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[jobKey]struct{}
	closed   bool
}

// NewPool starts workers goroutines running run. queue bounds the number of
// jobs waiting for a worker.
func NewPool(workers, queue int, run func(context.Context, Job) Result) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	capacity := workers + queue
	p := &Pool{
		run:      run,
		jobs:     make(chan Job, queue),
		results:  make(chan Result, capacity),
		capacity: capacity,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[jobKey]struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		// results has room for every outstanding job, so this never blocks
		p.results <- p.run(p.ctx, job)
	}
}

// Submit queues a job without blocking. It returns false when the pool is
// full, closed, or already has a job outstanding for the same identity and kind.
func (p *Pool) Submit(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.inflight) >= p.capacity {
		return false
	}
	key := jobKey{job.Identity, job.Kind}
	if _, busy := p.inflight[key]; busy {
		return false
	}

	select {
	case p.jobs <- job:
		p.inflight[key] = struct{}{}
		return true
	default:
		return false
	}
}

// Collect returns every finished result without blocking.
func (p *Pool) Collect() []Result {
	var out []Result
	for {
		select {
		case r := <-p.results:
			p.mu.Lock()
			delete(p.inflight, jobKey{r.Identity, r.Kind})
			p.mu.Unlock()
			out = append(out, r)
		default:
			return out
		}
	}
}

// Pending returns the number of outstanding jobs.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Close cancels running jobs and waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
