package cascade

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	okrerrors "github.com/randalmurphal/okr/internal/errors"
)

// Dispatcher defaults.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 200 * time.Millisecond
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("cascade dispatcher is closed")

// JobKind is the entity a job cascades from.
type JobKind string

const (
	JobTask JobKind = "task"
	JobKR   JobKind = "kr"
)

// Job is one queued cascade.
type Job struct {
	Kind JobKind
	ID   string
}

// String returns the job's tracking key, e.g. "kr kr-123".
func (j Job) String() string {
	return string(j.Kind) + " " + j.ID
}

// Runner executes cascades. *Coordinator implements it.
type Runner interface {
	CascadeFromTask(ctx context.Context, taskID string) error
	CascadeFromKR(ctx context.Context, krID string) error
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Workers   int
	QueueSize int
	// MaxRetries is the number of extra attempts after a failure.
	MaxRetries int
	// RetryBackoff is multiplied by the failure count before each retry.
	RetryBackoff time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
	Tracker      *RetryTracker
}

// Dispatcher runs cascade jobs on a fixed pool of workers fed by a
// bounded queue. Submit never waits for a free slot; SubmitWait does.
type Dispatcher struct {
	runner     Runner
	queue      chan Job
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	tracker    *RetryTracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	pending map[Job]bool
	senders sync.WaitGroup
}

// NewDispatcher starts the workers.
func NewDispatcher(runner Runner, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = NewRetryTracker()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner:     runner,
		queue:      make(chan Job, opts.QueueSize),
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracker:    opts.Tracker,
		ctx:        ctx,
		cancel:     cancel,
		pending:    make(map[Job]bool),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues a job. A job identical to one still waiting in the queue
// is coalesced into it. A full queue rejects the job with a QUEUE_FULL
// error; the next recompute repairs whatever it would have updated.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.pending[job] {
		return nil
	}

	select {
	case d.queue <- job:
		d.pending[job] = true
		return nil
	default:
		d.metrics.droppedJob()
		d.logger.Warn("cascade queue full, dropping job", "job", job.String(), "capacity", cap(d.queue))
		return okrerrors.ErrQueueFull(cap(d.queue))
	}
}

// SubmitWait queues a job, waiting for a free slot when the queue is full.
// Duplicates coalesce as in Submit. It returns ctx.Err() if ctx ends first,
// and the job is then not queued.
func (d *Dispatcher) SubmitWait(ctx context.Context, job Job) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.pending[job] {
		d.mu.Unlock()
		return nil
	}
	d.pending[job] = true
	d.senders.Add(1)
	d.mu.Unlock()
	defer d.senders.Done()

	select {
	case d.queue <- job:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, job)
		d.mu.Unlock()
		return ctx.Err()
	}
}

// Tracker returns the retry bookkeeping.
func (d *Dispatcher) Tracker() *RetryTracker {
	return d.tracker
}

// Close stops accepting jobs and waits until everything already queued,
// retries included, has run. SubmitWait calls already in progress finish
// queueing first.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.senders.Wait()
	close(d.queue)

	d.wg.Wait()
	d.cancel()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.mu.Lock()
		delete(d.pending, job)
		d.mu.Unlock()
		d.run(job)
	}
}

// run executes the job, retrying with linear backoff.
func (d *Dispatcher) run(job Job) {
	key := job.String()
	d.tracker.Begin(key)

	for {
		err := d.execute(job)
		if err == nil {
			d.tracker.RecordSuccess(key)
			return
		}

		failures := d.tracker.RecordFailure(key, err)
		if failures > d.maxRetries {
			d.tracker.MarkExhausted(key)
			d.metrics.gaveUp()
			d.logger.Error("cascade failed", "error", okrerrors.ErrRetriesExhausted(key, failures, err))
			return
		}

		d.metrics.retried()
		d.logger.Warn("cascade failed, retrying", "job", key, "attempt", failures, "error", err)
		time.Sleep(d.backoff * time.Duration(failures))
	}
}

func (d *Dispatcher) execute(job Job) error {
	switch job.Kind {
	case JobTask:
		return d.runner.CascadeFromTask(d.ctx, job.ID)
	case JobKR:
		return d.runner.CascadeFromKR(d.ctx, job.ID)
	default:
		d.logger.Warn("unknown cascade job kind", "job", job.String())
		return nil
	}
}
