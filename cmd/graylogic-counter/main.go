// Gray Logic People Counter Bridge
//
// This is the main entry point for the people-counter bridge. It polls a
// serial people-counting sensor, keeps its live state and change history
// in SQLite, and publishes state, health and communication alerts on the
// Gray Logic MQTT bus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-counter/migrations"

	"github.com/nerrad567/gray-logic-counter/internal/api"
	"github.com/nerrad567/gray-logic-counter/internal/bridges/counter"
	"github.com/nerrad567/gray-logic-counter/internal/device"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-counter/internal/site"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Components are constructed here and nowhere else. Deferred cleanups run
// in reverse order: poller, API, command handler, queue, codec, health
// reporter, InfluxDB, MQTT, database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic people counter",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	counterCfg := cfg.Protocols.Counter

	// Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	liveRepo := device.NewSQLiteLiveStateRepository(db.DB)
	historyRepo := device.NewSQLiteHistoryRepository(db.DB)
	statusRepo := device.NewSQLiteStatusRepository(db.DB)
	tenantRepo := site.NewSQLiteTenantRepository(db.DB)
	flag := site.NewFeatureFlag(site.NewSettingsRepository(db.DB), site.CounterEnabledKey, counterCfg.Enabled, log)

	// The health reporter is built before MQTT so its offline message can
	// be registered as the connection's will.
	bus := &mqttBridgeAdapter{}
	codec := newCodec(counterCfg)
	queue := counter.NewQueue(codec, log.With("component", "counter-queue"))

	health := counter.NewHealthReporter(counter.HealthReporterConfig{
		BridgeID:  counter.Protocol,
		Version:   version,
		Interval:  time.Duration(counterCfg.HealthIntervalS) * time.Second,
		Publisher: bus,
		Codec:     codec,
		Queue:     queue,
		Logger:    log,
	})
	lwt, err := health.LWTPayload()
	if err != nil {
		return fmt.Errorf("building LWT payload: %w", err)
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(health.LWTTopic(), lwt))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	bus.client = mqttClient
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	sinks := []counter.SampleSink{counter.NewStatePublisher(bus)}
	var influxHealth api.HealthChecker

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection", "written", stats.Written, "dropped", stats.Dropped)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		influxHealth = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Bridge health
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("failed to publish starting status", "error", pubErr)
	}
	health.Start(ctx)
	defer health.Stop()

	// Serial codec. A missing port is not fatal: the poller reports a
	// communication error and the codec reopens on the next tick.
	if openErr := codec.Open(ctx, ""); openErr != nil {
		log.Warn("serial port not available yet", "path", counterCfg.Serial.Path, "error", openErr)
	} else {
		log.Info("serial port ready",
			"path", counterCfg.Serial.Path,
			"baud_rate", counterCfg.Serial.BaudRate,
			"simulate", counterCfg.Simulate,
		)
	}
	defer func() {
		if closeErr := codec.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()

	queue.Start(ctx)
	defer queue.Close()

	// Commands
	commands := counter.NewCommandHandler(counter.CommandHandlerOptions{
		MQTT:     bus,
		Queue:    queue,
		DeviceID: counterCfg.DeviceID,
		Logger:   log,
	})
	if cmdErr := commands.Start(ctx); cmdErr != nil {
		return fmt.Errorf("starting command handler: %w", cmdErr)
	}
	defer commands.Stop()

	// API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		DeviceID: counterCfg.DeviceID,
		Live:     liveRepo,
		History:  historyRepo,
		Queue:    queue,
		Flag:     flag,
		Codec:    codec,
		Database: db,
		MQTT:     mqttClient,
		Influx:   influxHealth,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Poller
	poller, err := counter.NewPoller(counter.PollerOptions{
		Queue:         queue,
		Flags:         flag,
		Tenants:       tenantRepo,
		Live:          liveRepo,
		History:       historyRepo,
		Status:        statusRepo,
		Errors:        counter.NewAlertPublisher(bus),
		Sinks:         sinks,
		DeviceID:      counterCfg.DeviceID,
		UnitID:        counterCfg.UnitID,
		DefaultTenant: cfg.Site.DefaultTenant,
		Interval:      time.Duration(counterCfg.PollIntervalMS) * time.Millisecond,
		Logger:        log.With("component", "counter-poller"),
	})
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	poller.Start(ctx)
	defer poller.Stop()

	log.Info("initialisation complete, waiting for shutdown signal",
		"device_id", counterCfg.DeviceID,
		"poll_interval_ms", counterCfg.PollIntervalMS,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newCodec builds the serial codec from the counter config.
func newCodec(cfg config.CounterConfig) *counter.Codec {
	return counter.NewCodec(counter.CodecConfig{
		Path:            cfg.Serial.Path,
		BaudRate:        cfg.Serial.BaudRate,
		LineEnding:      cfg.Serial.LineEnding,
		ResponseTimeout: time.Duration(cfg.ResponseTimeoutMS) * time.Millisecond,
		ResetDelay:      time.Duration(cfg.ResetDelayMS) * time.Millisecond,
		Simulate:        cfg.Simulate,
	})
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the counter
// bridge's MQTTClient interface. The difference is the handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Counter bridge expects: func(topic, payload []byte)
//
// client is set once the connection is up; nothing publishes before that.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements counter.Publisher.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if a.client == nil {
		return mqtt.ErrNotConnected
	}
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements counter.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	if a.client == nil {
		return mqtt.ErrNotConnected
	}
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements counter.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	if a.client == nil {
		return mqtt.ErrNotConnected
	}
	return a.client.Unsubscribe(topic)
}

// IsConnected implements counter.Publisher.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client != nil && a.client.IsConnected()
}
