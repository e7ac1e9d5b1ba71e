package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-counter/internal/bridges/counter"
	"github.com/nerrad567/gray-logic-counter/internal/device"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// resetTimeout bounds a reset request, including time spent queued behind polls.
const resetTimeout = 10 * time.Second

// LiveStateReader reads the current counter record.
type LiveStateReader interface {
	Get(ctx context.Context, deviceID string) (*device.LiveState, error)
}

// HistoryReader reads recent counter samples.
type HistoryReader interface {
	GetHistory(ctx context.Context, deviceID string, limit int) ([]device.HistoryRecord, error)
}

// CounterQueue is the access queue as seen by the API.
type CounterQueue interface {
	SubmitReset(ctx context.Context, scope counter.ResetScope) error
	Diagnostics() counter.QueueDiagnostics
}

// FeatureToggle is the runtime switch that enables polling.
type FeatureToggle interface {
	IsFeatureEnabled(ctx context.Context) bool
	SetEnabled(ctx context.Context, enabled bool) error
}

// CodecStatsSource reports serial codec counters.
type CodecStatsSource interface {
	Stats() counter.CodecStats
}

// HealthChecker is satisfied by infrastructure clients (database, MQTT,
// InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	DeviceID string
	Live     LiveStateReader
	History  HistoryReader
	Queue    CounterQueue
	Flag     FeatureToggle
	Codec    CodecStatsSource // optional
	Database HealthChecker    // optional
	MQTT     HealthChecker    // optional
	Influx   HealthChecker    // optional
	Version  string
}

// Server is the HTTP API server for the counter bridge.
//
// It is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	deviceID string
	live     LiveStateReader
	history  HistoryReader
	queue    CounterQueue
	flag     FeatureToggle
	codec    CodecStatsSource
	database HealthChecker
	mqtt     HealthChecker
	influx   HealthChecker
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.DeviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if deps.Live == nil || deps.History == nil {
		return nil, fmt.Errorf("live state and history repositories are required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("access queue is required")
	}
	if deps.Flag == nil {
		return nil, fmt.Errorf("feature flag is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		deviceID: deps.DeviceID,
		live:     deps.Live,
		history:  deps.History,
		queue:    deps.Queue,
		flag:     deps.Flag,
		codec:    deps.Codec,
		database: deps.Database,
		mqtt:     deps.MQTT,
		influx:   deps.Influx,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
