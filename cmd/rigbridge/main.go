// rigbridge - camera rig middleware
//
// rigbridge sits between browser frontends and the device-control server
// driving the camera and lighting rig. It multiplexes frontend WebSocket
// clients onto one upstream device link, arbitrates the preview stream
// and capture-sequence slots, runs light/capture sequences, and archives
// captured artifacts on disk with a SQLite index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/openphotometrics/rigbridge/migrations"

	"github.com/openphotometrics/rigbridge/internal/api"
	"github.com/openphotometrics/rigbridge/internal/devlink"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/config"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/database"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/influxdb"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/logging"
	"github.com/openphotometrics/rigbridge/internal/infrastructure/mqtt"
	"github.com/openphotometrics/rigbridge/internal/media"
	"github.com/openphotometrics/rigbridge/internal/sequence"
	"github.com/openphotometrics/rigbridge/internal/session"
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

// telemetryInterval is how often link statistics are published.
const telemetryInterval = 30 * time.Second

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting rigbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the capture-set index database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Artifact store: SQLite index plus on-disk capture sets
	mediaRepo := media.NewSQLiteRepository(db.DB)
	mediaStore, err := media.NewStore(cfg.Media.BaseDir, mediaRepo, log)
	if err != nil {
		return fmt.Errorf("initialising media store: %w", err)
	}
	log.Info("media store initialised", "base_dir", cfg.Media.BaseDir)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Device link to the camera/lighting control server
	correlator := devlink.NewCorrelator(log)
	frameRouter := devlink.NewRouter(log)
	link := devlink.New(devlink.Config{
		URL:               cfg.Device.URL,
		ConnectTimeout:    cfg.Device.GetConnectTimeout(),
		RequestTimeout:    cfg.Device.GetRequestTimeout(),
		ReconnectInterval: cfg.Device.GetReconnectInterval(),
	}, correlator, frameRouter, log)
	defer func() {
		log.Info("closing device link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing device link", "error", closeErr)
		}
	}()

	// Session arbiter owns the stream and sequence slots and reacts to
	// link drops.
	arbiter := session.NewArbiter(frameRouter, link, 0, log)
	link.SetNotifier(arbiter)

	// The device server may start after us; keep retrying in the
	// background until the first connection succeeds.
	if link.Connect(ctx) {
		log.Info("device link connected", "url", cfg.Device.URL)
	} else {
		log.Warn("device server unreachable, retrying in background",
			"url", cfg.Device.URL,
			"interval", cfg.Device.GetReconnectInterval(),
		)
		go retryInitialConnect(ctx, link, cfg.Device.GetReconnectInterval(), log)
	}

	// Sequence engine drives light/capture runs against the link
	engine := sequence.NewEngine(link, mediaStore, sequence.Config{
		SettleDelay:    cfg.Sequence.GetSettleDelay(),
		InterStepDelay: cfg.Sequence.GetInterStepDelay(),
		CaptureTimeout: cfg.Device.GetCaptureTimeout(),
		CleanupTimeout: cfg.Sequence.GetCleanupTimeout(),
	}, log)
	engine.SetRecorder(&telemetryRecorder{
		mqtt:   mqttClient,
		influx: influxClient,
		log:    log,
	})

	// Frontend gateway and API server
	gateway := api.NewGateway(link, arbiter, engine, mediaStore, cfg.Device.GetCaptureTimeout(), log)
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Gateway: gateway,
		Link:    link,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodic link telemetry for dashboards
	go publishTelemetry(ctx, link, mqttClient, influxClient)

	// Verify infrastructure connections are healthy. The device link is
	// deliberately excluded: the bridge stays up while the device server
	// is down.
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Device link
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Database

	log.Info("rigbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses RIGBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RIGBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// retryInitialConnect attempts the first device connection at a fixed
// interval until it succeeds or the context is cancelled. Reconnects
// after a drop are handled inside the link itself.
func retryInitialConnect(ctx context.Context, link *devlink.Link, interval time.Duration, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if link.Connect(ctx) {
			log.Info("device link connected")
			return
		}
	}
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// publishTelemetry periodically publishes link statistics to InfluxDB and
// retained link status to MQTT. Both sinks are optional.
func publishTelemetry(ctx context.Context, link *devlink.Link, mqttClient *mqtt.Client, influxClient *influxdb.Client) {
	if mqttClient == nil && influxClient == nil {
		return
	}

	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	publishLinkStatus(link, mqttClient)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := link.Stats()
		if influxClient != nil {
			influxClient.WriteLinkStats(st.State, st.RequestsTx, st.ResponsesRx, st.FramesRx, st.ReconnectsTotal, st.ErrorsTotal)
		}
		publishLinkStatus(link, mqttClient)
	}
}

// publishLinkStatus publishes retained link state to MQTT.
func publishLinkStatus(link *devlink.Link, mqttClient *mqtt.Client) {
	if mqttClient == nil {
		return
	}

	st := link.Stats()
	payload, err := json.Marshal(map[string]any{
		"state":     st.State,
		"connected": st.Connected,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	//nolint:errcheck // Telemetry is best-effort
	mqttClient.PublishRetained(mqtt.Topics{}.LinkStatus(), payload)
}

// telemetryRecorder forwards sequence lifecycle events to MQTT and
// InfluxDB. Both sinks are optional; a nil client skips that sink.
type telemetryRecorder struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	log    *logging.Logger
}

// SequenceStarted implements sequence.Recorder.
func (r *telemetryRecorder) SequenceStarted(setName string, steps []string) {
	if r.mqtt == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":     "started",
		"set_name":  setName,
		"steps":     steps,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if pubErr := r.mqtt.PublishEvent(mqtt.Topics{}.SequenceEvent(), payload); pubErr != nil {
		r.log.Warn("failed to publish sequence event", "error", pubErr)
	}
}

// SequenceFinished implements sequence.Recorder.
func (r *telemetryRecorder) SequenceFinished(result sequence.Result, duration time.Duration) {
	if r.influx != nil {
		r.influx.WriteSequenceRun(result.SetName, string(result.Status), duration.Seconds(), result.Count)
	}

	if r.mqtt == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":            "finished",
		"set_name":         result.SetName,
		"status":           result.Status,
		"artifact_count":   result.Count,
		"duration_seconds": duration.Seconds(),
		"error":            result.ErrorDetail,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if pubErr := r.mqtt.PublishEvent(mqtt.Topics{}.SequenceEvent(), payload); pubErr != nil {
		r.log.Warn("failed to publish sequence event", "error", pubErr)
	}
}
