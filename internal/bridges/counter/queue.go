package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging interface used throughout the package.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type jobKind int

const (
	jobQuery jobKind = iota + 1
	jobReset
)

func (k jobKind) String() string {
	if k == jobReset {
		return "reset"
	}
	return "query"
}

type jobResult struct {
	reading Reading
	err     error
}

// job is one queued transport operation. result has capacity 1 and is
// written exactly once, by whoever removes the job from the queue.
type job struct {
	id       string
	kind     jobKind
	scope    ResetScope
	ctx      context.Context
	enqueued time.Time
	result   chan jobResult
}

// QueueDiagnostics is a point-in-time view of the access queue.
type QueueDiagnostics struct {
	// Depth is the number of jobs waiting, not counting the active one.
	Depth int `json:"depth"`

	// Active is true while a job is executing against the transport.
	Active bool `json:"active"`

	// Processed counts jobs that reached the transport.
	Processed uint64 `json:"processed"`
}

// Queue serialises access to the counter transport. Jobs run one at a time
// in submission order on a single drain goroutine; each submitter blocks
// until its own job completes.
//
// Thread Safety:
//   - SubmitQuery, SubmitReset, Diagnostics and Close are safe for
//     concurrent use.
type Queue struct {
	transport Transport
	logger    Logger

	mu      sync.Mutex
	pending []*job
	started bool
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	active    atomic.Bool
	processed atomic.Uint64
}

// NewQueue creates an access queue in front of transport. Jobs are not
// executed until Start is called.
func NewQueue(transport Transport, logger Logger) *Queue {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Queue{
		transport: transport,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the drain goroutine. Cancelling ctx has the same effect
// as Close. Calling Start more than once, or after Close, does nothing.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	q.wg.Add(1)
	go q.drain(ctx)
}

// Close stops the drain goroutine after the active job finishes. Jobs
// still waiting are resolved with ErrQueueClosed. Safe to call multiple
// times.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.done)
		q.wg.Wait()
		q.rejectPending()
	})
}

// SubmitQuery enqueues a state query and waits for its reading.
//
// Parameters:
//   - ctx: Bounds both the wait in the queue and the transport exchange
//
// Returns:
//   - Reading: Decoded sensor state
//   - error: ErrQueueClosed, ctx.Err(), or the transport error
func (q *Queue) SubmitQuery(ctx context.Context) (Reading, error) {
	res := q.submit(ctx, jobQuery, 0)
	return res.reading, res.err
}

// SubmitReset enqueues a counter reset and waits for it to be written.
func (q *Queue) SubmitReset(ctx context.Context, scope ResetScope) error {
	if _, err := resetSequence(scope); err != nil {
		return err
	}
	return q.submit(ctx, jobReset, scope).err
}

// Diagnostics returns queue depth and activity.
func (q *Queue) Diagnostics() QueueDiagnostics {
	q.mu.Lock()
	depth := len(q.pending)
	q.mu.Unlock()

	return QueueDiagnostics{
		Depth:     depth,
		Active:    q.active.Load(),
		Processed: q.processed.Load(),
	}
}

func (q *Queue) submit(ctx context.Context, kind jobKind, scope ResetScope) jobResult {
	j := &job{
		id:       uuid.NewString(),
		kind:     kind,
		scope:    scope,
		ctx:      ctx,
		enqueued: time.Now(),
		result:   make(chan jobResult, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return jobResult{err: ErrQueueClosed}
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-j.result:
		return res
	case <-ctx.Done():
		// The job stays queued; the drain goroutine resolves it without
		// touching the transport once it reaches the head.
		return jobResult{err: ctx.Err()}
	}
}

func (q *Queue) drain(ctx context.Context) {
	defer q.wg.Done()
	defer q.rejectPending()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		default:
		}

		j := q.next()
		if j == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case <-q.wake:
			}
			continue
		}

		q.run(j)
	}
}

// next pops the head of the queue, or returns nil when it is empty.
func (q *Queue) next() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j
}

func (q *Queue) run(j *job) {
	if err := j.ctx.Err(); err != nil {
		q.logger.Debug("dropping cancelled counter job", "job_id", j.id, "kind", j.kind.String())
		j.result <- jobResult{err: err}
		return
	}

	q.active.Store(true)
	defer q.active.Store(false)

	start := time.Now()
	var res jobResult
	switch j.kind {
	case jobReset:
		res.err = q.transport.Reset(j.ctx, j.scope)
	default:
		res.reading, res.err = q.transport.Query(j.ctx)
	}
	q.processed.Add(1)

	q.logger.Debug("counter job complete",
		"job_id", j.id,
		"kind", j.kind.String(),
		"waited", start.Sub(j.enqueued),
		"took", time.Since(start),
		"error", res.err,
	)
	j.result <- res
}

// rejectPending marks the queue closed and fails every waiting job.
func (q *Queue) rejectPending() {
	q.mu.Lock()
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, j := range pending {
		j.result <- jobResult{err: ErrQueueClosed}
	}
	if len(pending) > 0 {
		q.logger.Info("counter queue closed with pending jobs", "rejected", len(pending))
	}
}
