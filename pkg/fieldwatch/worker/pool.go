package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/qawaq/fieldwatch/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Pool — fan-out dispatcher for availability checks
// ─────────────────────────────────────────────────────────────────────────────

// Job is one unit of work: probe a single device or server using the config
// snapshot taken at scheduling time.
type Job struct {
	Kind   string // "device" or "server"
	Code   string
	Config models.GlobalConfig
}

// Runner executes a single job. Implemented by the app layer, which routes
// device jobs and server jobs to their checkers.
type Runner interface {
	Run(ctx context.Context, job Job)
}

// Pool fans check jobs out to N worker goroutines. Each job carries its own
// config snapshot so a mid-cycle config change never splits one sweep.
type Pool struct {
	numWorkers int
	runner     Runner
	logger     *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup
}

// New creates a pool of numWorkers goroutines executing jobs through runner.
func New(numWorkers, queueSize int, runner Runner, logger *slog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 50
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 2
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pool{
		numWorkers: numWorkers,
		runner:     runner,
		logger:     logger,
		jobs:       make(chan Job, queueSize),
	}
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit enqueues a job. It blocks if the internal job channel is full.
func (p *Pool) Submit(job Job) {
	p.jobs <- job
}

// TrySubmit enqueues a job without blocking. Returns false if the channel is
// full, allowing the scheduler to drop the check rather than stall a sweep.
func (p *Pool) TrySubmit(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop closes the job channel and waits for all workers to drain.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// worker is the per-goroutine loop.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.runner.Run(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}
