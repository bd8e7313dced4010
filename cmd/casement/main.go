// Casement Core - window relay service
//
// This is the main entry point for the Casement Core application.
// It brokers real-time traffic between one embedded window controller
// and any number of observer clients, guarded by a session-token
// credential layer backed by SQLite.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/casement-core/migrations"

	"github.com/nerrad567/casement-core/internal/api"
	"github.com/nerrad567/casement-core/internal/auth"
	"github.com/nerrad567/casement-core/internal/infrastructure/config"
	"github.com/nerrad567/casement-core/internal/infrastructure/database"
	"github.com/nerrad567/casement-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/casement-core/internal/infrastructure/logging"
	"github.com/nerrad567/casement-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/casement-core/internal/notify"
	"github.com/nerrad567/casement-core/internal/relay"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Casement Core",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the credential store. Failure is not fatal: the relay must
	// keep brokering device and observer traffic even when the store is
	// down, so auth comes up degraded instead.
	var gate *auth.Gate
	var users auth.UserRepository
	db := openCredentialStore(ctx, cfg, log)
	if db != nil {
		defer func() {
			log.Info("closing credential store")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing credential store", "error", closeErr)
			}
		}()
		gate = auth.NewGate(auth.NewTokenLedger(db.DB), cfg.Security.JWT.Secret)
		gate.SetLogger(log)
		users = auth.NewUserRepository(db.DB)
	}

	// Relay core: registry, state store, engine
	engine := relay.NewEngine(relay.NewRegistry(), relay.NewStateStore(), log)

	// Connect to MQTT broker (optional outward bus)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Error("MQTT connection failed, continuing without broker", "error", err)
			mqttClient = nil
		} else {
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

			mqttClient.SetLogger(log)
			mqttClient.SetOnConnect(func() {
				log.Info("MQTT reconnected")
			})
			mqttClient.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})

			// Inbound commands from the broker feed the relay alongside
			// observer commands.
			topics := mqtt.Topics{}
			subErr := mqttClient.Subscribe(topics.Command(), byte(cfg.MQTT.QoS), func(_ string, payload []byte) error {
				engine.InjectCommand(string(payload))
				return nil
			})
			if subErr != nil {
				log.Error("subscribing to command topic failed", "topic", topics.Command(), "error", subErr)
			}
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional telemetry archive)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Error("InfluxDB connection failed, continuing without archive", "error", err)
			influxClient = nil
		} else {
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
		}
	} else {
		log.Info("InfluxDB disabled")
	}

	if influxClient != nil || mqttClient != nil {
		engine.SetArchive(&archiveAdapter{influx: influxClient, mqtt: mqttClient, log: log})
	}

	// Notification dispatcher with whatever sinks are configured
	dispatcher := buildDispatcher(cfg, mqttClient, log)
	if dispatcher != nil {
		dispatcher.Start()
		defer func() {
			log.Info("stopping notification dispatcher")
			dispatcher.Close()
		}()
		engine.SetNotifier(dispatcher)
	}

	// HTTP and WebSocket surface
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Relay:    cfg.Relay,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		Gate:     gate,
		Users:    users,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"relay_path", cfg.Relay.Path,
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if gate == nil {
		log.Warn("running degraded: credential store unavailable, auth routes disabled")
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Notification dispatcher
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if enabled)
	// 5. Credential store (if open)

	log.Info("Casement Core stopped")
	return nil
}

// openCredentialStore opens and migrates the SQLite store.
// Returns nil on failure so the caller can start degraded.
func openCredentialStore(ctx context.Context, cfg *config.Config, log *logging.Logger) *database.DB {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		log.Error("opening credential store failed, starting degraded", "error", err)
		return nil
	}

	if err := db.Migrate(ctx); err != nil {
		log.Error("migrating credential store failed, starting degraded", "error", err)
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing credential store", "error", closeErr)
		}
		return nil
	}

	log.Info("credential store ready", "path", cfg.Database.Path)
	return db
}

// buildDispatcher assembles the notification dispatcher from config.
// Returns nil when no sink is configured.
func buildDispatcher(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) *notify.Dispatcher {
	var sinks []notify.Sink

	if cfg.Notify.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.Webhook.URL))
	}
	if mqttClient != nil && cfg.Notify.MQTTTopic != "" {
		sinks = append(sinks, notify.NewMQTTSink(mqttClient, cfg.Notify.MQTTTopic, byte(cfg.MQTT.QoS)))
	}

	if len(sinks) == 0 {
		log.Info("no notification sinks configured")
		return nil
	}

	return notify.NewDispatcher(cfg.Notify, log, sinks...)
}

// getConfigPath returns the configuration file path.
// Uses CASEMENT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CASEMENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure that did come up is healthy.
// Components running degraded (nil) are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// archiveAdapter fans relay archive writes out to InfluxDB and mirrors
// the current state to the MQTT retained topic. Either side may be nil.
type archiveAdapter struct {
	influx *influxdb.Client
	mqtt   *mqtt.Client
	log    *logging.Logger
}

// AppendLog implements relay.Archive.
func (a *archiveAdapter) AppendLog(direction, role, userID, payload string) {
	if a.influx != nil {
		a.influx.WriteRelayLog(direction, role, userID, payload)
	}
}

// SetCurrent implements relay.Archive.
func (a *archiveAdapter) SetCurrent(snapshot relay.Snapshot) {
	if a.influx != nil && snapshot.UpdatedAt != nil {
		a.influx.WriteCurrentState(string(snapshot.Window), string(snapshot.Mode), *snapshot.UpdatedAt)
	}

	if a.mqtt != nil {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			a.log.Error("marshalling state snapshot", "error", err)
			return
		}
		topics := mqtt.Topics{}
		if err := a.mqtt.PublishRetained(topics.StateCurrent(), payload); err != nil {
			a.log.Warn("mirroring state to MQTT failed", "error", err)
		}
	}
}
