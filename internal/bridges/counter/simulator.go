package counter

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/device"
)

// DefaultSimulationDelay is the simulated response latency.
const DefaultSimulationDelay = 50 * time.Millisecond

// Random walk thresholds: below entryProbability is an entry, below
// entryProbability+exitProbability is an exit, otherwise no change.
const (
	entryProbability = 0.3
	exitProbability  = 0.3
)

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	// Delay is the response latency. Default: 50ms.
	Delay time.Duration

	// Float64 returns values in [0, 1). Default: math/rand/v2.
	Float64 func() float64
}

// Simulator stands in for a physical counter during development. Each
// query applies one random-walk step and is rendered through FormatFrame
// and ParseFrame, so readings look exactly like ones from the wire.
type Simulator struct {
	delay   time.Duration
	float64 func() float64

	mu    sync.Mutex
	state device.CounterState
}

// NewSimulator creates a simulator with all counters at zero.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultSimulationDelay
	}
	if cfg.Float64 == nil {
		cfg.Float64 = rand.Float64
	}
	return &Simulator{
		delay:   cfg.Delay,
		float64: cfg.Float64,
		state: device.CounterState{
			CountEnabled:  true,
			SensorHealthy: true,
		},
	}
}

// Query waits the simulated latency, advances the walk and returns the
// resulting reading.
func (s *Simulator) Query(ctx context.Context) (Reading, error) {
	if err := sleepCtx(ctx, s.delay); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	switch r := s.float64(); {
	case r < entryProbability:
		s.state.Entries++
		s.state.Current++
	case r < entryProbability+exitProbability:
		s.state.Exits++
		if s.state.Current > 0 {
			s.state.Current--
		}
	}
	frame := FormatFrame(Reading{CounterState: s.state})
	s.mu.Unlock()

	reading, err := ParseFrame(frame)
	if err != nil {
		return Reading{}, err
	}
	reading.CapturedAt = time.Now()
	return reading, nil
}

// Reset zeroes the counters named by the given single-counter scopes.
func (s *Simulator) Reset(scopes ...ResetScope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, scope := range scopes {
		switch scope {
		case ResetCurrent:
			s.state.Current = 0
		case ResetEntries:
			s.state.Entries = 0
		case ResetExits:
			s.state.Exits = 0
		case ResetAll:
			s.state.Current, s.state.Entries, s.state.Exits = 0, 0, 0
		}
	}
}

// State returns the current simulated counters.
func (s *Simulator) State() device.CounterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
