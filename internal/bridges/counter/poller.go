package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/device"
	"github.com/nerrad567/gray-logic-counter/internal/site"
)

// DefaultPollInterval is the default tick period.
const DefaultPollInterval = 1000 * time.Millisecond

// QuerySubmitter runs state queries. *Queue implements it.
type QuerySubmitter interface {
	SubmitQuery(ctx context.Context) (Reading, error)
}

// FeatureFlags reports whether counter polling is enabled.
type FeatureFlags interface {
	IsFeatureEnabled(ctx context.Context) bool
}

// TenantResolver finds the tenant samples are attributed to.
type TenantResolver interface {
	PrimaryTenant(ctx context.Context) (site.Tenant, error)
}

// LiveStore keeps the single current record per counter.
type LiveStore interface {
	Upsert(ctx context.Context, deviceID string, state device.CounterState, capturedAt time.Time) error
}

// HistoryStore appends samples.
type HistoryStore interface {
	Append(ctx context.Context, rec device.HistoryRecord) error
}

// SampleSink receives every persisted sample, e.g. an MQTT state
// publisher or a time-series writer.
type SampleSink interface {
	RecordSample(ctx context.Context, rec device.HistoryRecord) error
}

// PollerState is the lifecycle state of a Poller.
type PollerState int

const (
	PollerStopped PollerState = iota
	PollerStarting
	PollerRunning
)

// String returns the state name.
func (s PollerState) String() string {
	switch s {
	case PollerStarting:
		return "starting"
	case PollerRunning:
		return "running"
	default:
		return "stopped"
	}
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Queue runs the state queries. Required.
	Queue QuerySubmitter

	// Flags gates every tick. Required.
	Flags FeatureFlags

	// Tenants resolves the owning tenant for history rows. Required.
	Tenants TenantResolver

	// Live and History persist changed readings. Required.
	Live    LiveStore
	History HistoryStore

	// Status and Errors are notified of communication health independently.
	// Both default to NopCommReporter.
	Status CommReporter
	Errors CommReporter

	// Sinks receive each sample after it is persisted. Optional.
	Sinks []SampleSink

	// DeviceID keys the live record and history rows. Required.
	DeviceID string

	// UnitID identifies the sensor unit in health reports.
	UnitID string

	// DefaultTenant is used when the tenant lookup fails.
	DefaultTenant string

	// Interval is the tick period. Default: 1s.
	Interval time.Duration

	Logger Logger
}

// Poller periodically queries the counter and persists readings whose entry
// count differs from the last one observed.
//
// Lifecycle: Stopped → Starting → Running → Stopped. Ticks run on a single
// goroutine and never overlap; a slow tick causes ticker events to be
// dropped.
type Poller struct {
	opts   PollerOptions
	logger Logger

	mu    sync.Mutex
	state PollerState
	done  chan struct{}
	wg    sync.WaitGroup

	lastMu      sync.Mutex
	lastEntries uint32
	lastSet     bool

	// commFailing is only touched by the tick goroutine.
	commFailing bool
}

// NewPoller validates options and creates a stopped poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("counter: poller requires a queue")
	case opts.Flags == nil:
		return nil, errors.New("counter: poller requires feature flags")
	case opts.Tenants == nil:
		return nil, errors.New("counter: poller requires a tenant resolver")
	case opts.Live == nil:
		return nil, errors.New("counter: poller requires a live store")
	case opts.History == nil:
		return nil, errors.New("counter: poller requires a history store")
	case opts.DeviceID == "":
		return nil, errors.New("counter: poller requires a device id")
	}

	if opts.Status == nil {
		opts.Status = NopCommReporter{}
	}
	if opts.Errors == nil {
		opts.Errors = NopCommReporter{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Poller{opts: opts, logger: logger}, nil
}

// Start bootstraps the live record and begins ticking. Calling Start on a
// poller that is not stopped logs and returns.
//
// Ticks inherit ctx's values but not its cancellation; use Stop to end
// polling.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state != PollerStopped {
		state := p.state
		p.mu.Unlock()
		p.logger.Info("counter poller already started", "state", state.String())
		return
	}
	p.state = PollerStarting
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	p.clearLast()
	p.commFailing = false

	if p.opts.Flags.IsFeatureEnabled(ctx) {
		if err := p.opts.Live.Upsert(ctx, p.opts.DeviceID, device.CounterState{}, time.Now()); err != nil {
			p.logger.Error("failed to bootstrap counter live state", "device_id", p.opts.DeviceID, "error", err)
		}
	}

	p.wg.Add(1)
	go p.loop(context.WithoutCancel(ctx), done)

	p.mu.Lock()
	if p.state == PollerStarting {
		p.state = PollerRunning
	}
	p.mu.Unlock()

	p.logger.Info("counter poller started",
		"device_id", p.opts.DeviceID,
		"unit_id", p.opts.UnitID,
		"interval", p.opts.Interval,
	)
}

// Stop halts ticking, waits for an in-flight tick to finish and forgets the
// last observed entry count. Stopping a stopped poller does nothing.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == PollerStopped || p.done == nil {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.done = nil
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.state = PollerStopped
	p.mu.Unlock()
	p.clearLast()

	p.logger.Info("counter poller stopped", "device_id", p.opts.DeviceID)
}

// State returns the lifecycle state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) loop(ctx context.Context, done <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick performs one poll cycle.
func (p *Poller) tick(ctx context.Context) {
	if !p.opts.Flags.IsFeatureEnabled(ctx) {
		return
	}

	reading, err := p.opts.Queue.SubmitQuery(ctx)
	if err != nil {
		p.reportCommError(ctx, err)
		return
	}
	p.reportCommOK(ctx)

	if !p.observe(reading.Entries) {
		return
	}

	capturedAt := reading.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	rec := device.HistoryRecord{
		DeviceID:     p.opts.DeviceID,
		TenantID:     p.resolveTenant(ctx),
		CounterState: reading.CounterState,
		CapturedAt:   capturedAt,
	}

	if err := p.opts.Live.Upsert(ctx, p.opts.DeviceID, reading.CounterState, capturedAt); err != nil {
		p.logger.Error("failed to update counter live state", "device_id", p.opts.DeviceID, "error", err)
	}
	if err := p.opts.History.Append(ctx, rec); err != nil {
		p.logger.Error("failed to append counter history", "device_id", p.opts.DeviceID, "error", err)
	}
	for _, sink := range p.opts.Sinks {
		if err := sink.RecordSample(ctx, rec); err != nil {
			p.logger.Warn("counter sample sink failed", "device_id", p.opts.DeviceID, "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}

	p.logger.Debug("counter reading stored",
		"device_id", p.opts.DeviceID,
		"entries", reading.Entries,
		"exits", reading.Exits,
		"current", reading.Current,
	)
}

// observe records entries and reports whether it differs from the previous
// value. The first reading after Start always counts as a change.
func (p *Poller) observe(entries uint32) bool {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()

	if p.lastSet && p.lastEntries == entries {
		return false
	}
	p.lastEntries = entries
	p.lastSet = true
	return true
}

func (p *Poller) clearLast() {
	p.lastMu.Lock()
	p.lastEntries = 0
	p.lastSet = false
	p.lastMu.Unlock()
}

func (p *Poller) resolveTenant(ctx context.Context) string {
	tenant, err := p.opts.Tenants.PrimaryTenant(ctx)
	if err != nil {
		p.logger.Warn("primary tenant lookup failed, using default",
			"default_tenant", p.opts.DefaultTenant,
			"error", err,
		)
		return p.opts.DefaultTenant
	}
	return tenant.ID
}

func (p *Poller) reportCommError(ctx context.Context, cause error) {
	kind := errorKind(cause)
	if !p.commFailing {
		p.logger.Warn("people counter not responding",
			"device_id", p.opts.DeviceID,
			"unit_id", p.opts.UnitID,
			"kind", kind,
			"error", cause,
		)
	} else {
		p.logger.Debug("people counter still not responding", "kind", kind, "error", cause)
	}
	p.commFailing = true

	if err := p.opts.Status.SetCommunicationError(ctx, p.opts.DeviceID, p.opts.UnitID); err != nil {
		p.logger.Error("failed to record communication error status", "error", err)
	}
	if err := p.opts.Errors.SetCommunicationError(ctx, p.opts.DeviceID, p.opts.UnitID); err != nil {
		p.logger.Error("failed to raise communication alert", "error", err)
	}
}

func (p *Poller) reportCommOK(ctx context.Context) {
	if p.commFailing {
		p.logger.Info("people counter communication restored",
			"device_id", p.opts.DeviceID,
			"unit_id", p.opts.UnitID,
		)
	}
	p.commFailing = false

	if err := p.opts.Status.ClearCommunicationError(ctx, p.opts.DeviceID, p.opts.UnitID); err != nil {
		p.logger.Error("failed to clear communication error status", "error", err)
	}
	if err := p.opts.Errors.ClearCommunicationError(ctx, p.opts.DeviceID, p.opts.UnitID); err != nil {
		p.logger.Error("failed to clear communication alert", "error", err)
	}
}

// errorKind classifies a transport failure for logs and acknowledgements.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed"
	case errors.Is(err, ErrTransportUnavailable):
		return "unavailable"
	case errors.Is(err, ErrWriteFailed):
		return "write"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrQueueClosed):
		return "queue_closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
