// Gray Logic Media Bridge
//
// This is the main entry point for the media bridge. It discovers networked
// media appliances on the LAN, keeps a polled session with each one, and
// exposes their state and controls to Gray Logic Core over MQTT and REST.
//
// Usage:
//
//	mediabridge              run the bridge
//	mediabridge token <sub>  print a bearer token signed with security.jwt.secret
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-media/migrations"

	"github.com/nerrad567/gray-logic-media/internal/api"
	"github.com/nerrad567/gray-logic-media/internal/bridges/ecp"
	"github.com/nerrad567/gray-logic-media/internal/discovery"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-media/internal/media"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	// commandTimeout bounds one MQTT-issued command.
	commandTimeout = 10 * time.Second

	// tokenTTL is the lifetime of tokens printed by the token subcommand.
	tokenTTL = 365 * 24 * time.Hour

	// pruneInterval is how often old history rows are deleted.
	pruneInterval = 6 * time.Hour
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Stdout, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic media bridge",
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
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := media.NewSQLiteRepository(db.DB)
	historyRepo := media.NewSQLiteHistoryRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
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

	// Connect to InfluxDB (optional)
	var points media.PointWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		points = influxClient
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
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
	}

	// Event sinks: MQTT state topics, local history + InfluxDB, WebSocket clients
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2
	publisher := media.NewPublisher(mqttClient, qos)
	publisher.SetLogger(log.Component("publisher"))
	recorder := media.NewRecorder(historyRepo, points, log.Component("recorder"))
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// Discovery and device transport
	agent := discovery.NewAgent(discovery.Options{
		Searcher:   discovery.SSDPSearcher{LocalAddr: cfg.Media.Discovery.LocalAddr},
		Describer:  discovery.NewHTTPDescriber(cfg.Media.RequestTimeoutDuration()),
		Rounds:     cfg.Media.Discovery.Rounds,
		RoundPause: cfg.Media.Discovery.RoundPause(),
		Logger:     log.Component("discovery"),
	})
	ecpClient := ecp.NewClient(cfg.Media.RequestTimeoutDuration())

	engine := media.NewEngine(media.Options{
		Config:    engineConfig(cfg.Media),
		Client:    ecpClient,
		Searcher:  agent,
		Store:     deviceRepo,
		Emitter:   media.FanOut{publisher, recorder, hub},
		Announcer: publisher,
		Logger:    log.Component("media"),
	})
	if startErr := engine.Start(ctx); startErr != nil {
		return fmt.Errorf("starting media engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping media engine")
		engine.Stop()
	}()

	// Inbound commands over MQTT
	commands := media.NewCommandHandler(engine, publisher, commandTimeout, log.Component("commands"))
	if subErr := commands.Subscribe(mqttClient, qos); subErr != nil {
		return fmt.Errorf("subscribing to commands: %w", subErr)
	}

	// Periodic health reports
	health := media.NewHealthReporter(media.HealthReporterConfig{
		BridgeID:  cfg.Site.ID,
		Version:   version,
		Publisher: mqttClient,
		Stats:     engine,
	})
	health.SetLogger(log.Component("health"))
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("failed to publish starting status", "error", pubErr)
	}
	health.Start(ctx)
	defer health.Stop()

	// REST API + WebSocket
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Engine:   engine,
		History:  historyRepo,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Database.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Database.HistoryRetentionDays) * 24 * time.Hour
		go pruneLoop(ctx, historyRepo, retention, log)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, health, engine, InfluxDB, MQTT, database.
	return nil
}

// engineConfig converts the media configuration section into engine tuning.
func engineConfig(m config.MediaConfig) media.Config {
	return media.Config{
		Timing: media.Timing{
			Default:          m.PollIntervalDuration(),
			Fast:             m.FastPollIntervalDuration(),
			Quiet:            m.QuietPeriodDuration(),
			FailureThreshold: m.FailureThreshold,
			CycleTimeout:     m.RequestTimeoutDuration() * 4,
		},
		KeyClearDelay: m.KeyClearDelayDuration(),
		Recovery: media.RecoveryDelays{
			Initial: m.Recovery.InitialDelayDuration(),
			Short:   m.Recovery.ShortDelayDuration(),
			Long:    m.Recovery.LongDelayDuration(),
		},
		Discovery: discovery.Request{
			ServiceType: m.Discovery.ServiceType,
			RoundTrip:   m.Discovery.RoundTripDuration(),
			NonStrict:   m.Discovery.NonStrict,
		},
		ScanInterval: m.Discovery.ScanIntervalDuration(),
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// historyPruner deletes old history rows.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneLoop trims the local history until ctx is cancelled.
func pruneLoop(ctx context.Context, repo historyPruner, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.PruneHistory(ctx, retention)
		if err != nil {
			log.Warn("pruning history failed", "error", err)
		} else if n > 0 {
			log.Info("pruned history", "rows", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// printToken writes a bearer token for the subject in args[0].
func printToken(w io.Writer, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: mediabridge token <subject>")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, args[0], tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
