// Curtain Lights - interrupt-and-restore celebration engine for smart lights.
//
// This is the main entry point. It wires the vendor client, the celebration
// engine, the trigger scheduler and the HTTP API, then waits for a shutdown
// signal. On shutdown every light that is mid-celebration is restored before
// the process exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/api"
	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/config"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/database"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/influxdb"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/logging"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/metrics"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/mqtt"
	"github.com/blakeyoung81/Curtain-Lights/internal/limiter"
	"github.com/blakeyoung81/Curtain-Lights/internal/telemetry"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
	"github.com/blakeyoung81/Curtain-Lights/internal/trigger"
	"github.com/blakeyoung81/Curtain-Lights/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shutdownGrace is added to the restore timeout when waiting for
	// in-flight restores after a signal arrives.
	shutdownGrace = 15 * time.Second

	// pushRetention is how long processed push ids are remembered on disk.
	pushRetention = 30 * 24 * time.Hour

	// pruneInterval is how often expired push ids are deleted.
	pruneInterval = 6 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Curtain Lights",
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	registry, err := tenant.NewRegistry(cfg.Tenants)
	if err != nil {
		return fmt.Errorf("loading tenants: %w", err)
	}
	log.Info("tenants loaded", "count", len(registry.List()))

	metricsMgr := metrics.NewManager(metrics.WithRuntimeCollectors())

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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var samples telemetry.SampleWriter
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		samples = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Vendor command path: one shared limiter for the API key.
	bucket, err := limiter.New(cfg.Govee.RateLimit.Ceiling, cfg.Govee.RateLimit.Window,
		limiter.WithWaitObserver(metricsMgr.ObserveLimiterWait))
	if err != nil {
		return fmt.Errorf("creating command limiter: %w", err)
	}
	defer bucket.Close()

	goveeClient, err := govee.New(govee.Config{
		BaseURL:        cfg.Govee.BaseURL,
		APIKey:         cfg.Govee.APIKey,
		RequestTimeout: cfg.Govee.RequestTimeout,
		Backoff:        cfg.Govee.Retry.Backoff,
	}, bucket,
		govee.WithLogger(log.Component("govee")),
		govee.WithCommandHook(telemetry.CommandHook(metricsMgr, samples)),
	)
	if err != nil {
		return fmt.Errorf("creating device client: %w", err)
	}
	log.Info("device client ready",
		"base_url", cfg.Govee.BaseURL,
		"ceiling", cfg.Govee.RateLimit.Ceiling,
		"window", cfg.Govee.RateLimit.Window,
	)

	var background sync.WaitGroup

	// Observers outlive the run context so the restores issued during
	// shutdown are still reported.
	obsCtx, obsCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		obsCancel()
		background.Wait()
	}()

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	background.Add(1)
	go func() {
		defer background.Done()
		hub.Run(obsCtx)
	}()

	engineOpts := []celebration.Option{
		celebration.WithLogger(log.Component("engine")),
		celebration.WithObserver(hub),
		celebration.WithObserver(telemetry.NewMetricsObserver(metricsMgr)),
		celebration.WithBudget(bucket),
	}
	if samples != nil {
		engineOpts = append(engineOpts, celebration.WithObserver(telemetry.NewInfluxObserver(samples)))
	}
	if mqttClient != nil {
		publisher := telemetry.NewStatusPublisher(mqttClient, mqttClient.Topics().CelebrationStatus, log.Component("status"))
		engineOpts = append(engineOpts, celebration.WithObserver(publisher))
		background.Add(1)
		go func() {
			defer background.Done()
			publisher.Run(obsCtx)
		}()
	}

	engine := celebration.NewEngine(celebration.Config{RestoreTimeout: cfg.Celebration.RestoreTimeout},
		goveeClient, registry, engineOpts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Celebration.RestoreTimeout+shutdownGrace)
		defer cancel()
		log.Info("restoring lights")
		if closeErr := engine.Close(shutdownCtx); closeErr != nil {
			log.Error("error closing celebration engine", "error", closeErr)
		}
	}()
	log.Info("celebration engine ready", "tiers", len(engine.Tiers().Tiers()))

	// Triggers
	store := trigger.NewSQLiteCursorStore(db)
	push := trigger.NewPushReceiver(engine, cfg.Scheduler.PushDedupeSize,
		trigger.WithPushStore(store),
		trigger.WithPushLogger(log.Component("push")),
		trigger.WithPushMetrics(metricsMgr),
	)
	if warmErr := push.Warm(ctx); warmErr != nil {
		log.Warn("warming push dedupe failed", "error", warmErr)
	}

	// Trigger goroutines must stop before the engine restores and the
	// database closes, including when startup fails below.
	var triggers sync.WaitGroup
	defer triggers.Wait()
	trigCtx, stopTriggers := context.WithCancel(ctx)
	defer stopTriggers()

	triggers.Add(1)
	go func() {
		defer triggers.Done()
		prunePushes(trigCtx, store, log)
	}()

	if mqttClient != nil {
		topics := mqttClient.Topics()
		if subErr := mqttClient.Subscribe(topics.AllPush(), byte(cfg.MQTT.QoS), push.MQTTHandler(trigCtx, topics.PushTenant)); subErr != nil {
			return fmt.Errorf("subscribing to push topic: %w", subErr)
		}
		log.Info("listening for pushed events", "topic", topics.AllPush())
	}

	var refresher api.Refresher
	if cfg.Scheduler.Enabled {
		scheduler := trigger.NewScheduler(registry, store, engine, []trigger.Source{
			trigger.NewCalendarSource(trigger.HTTPConfig{BaseURL: cfg.Scheduler.CalendarBaseURL}, cfg.Scheduler.CalendarLookahead),
			trigger.NewSubscriberSource(trigger.HTTPConfig{BaseURL: cfg.Scheduler.YouTubeBaseURL}),
		},
			trigger.WithInterval(cfg.Scheduler.Interval),
			trigger.WithMaxConcurrent(cfg.Scheduler.MaxConcurrentPolls),
			trigger.WithLogger(log.Component("scheduler")),
			trigger.WithMetrics(metricsMgr),
		)
		refresher = scheduler

		triggers.Add(1)
		go func() {
			defer triggers.Done()
			if runErr := scheduler.Run(trigCtx); runErr != nil {
				log.Error("scheduler stopped", "error", runErr)
			}
		}()
		log.Info("trigger scheduler started", "interval", cfg.Scheduler.Interval)
	} else {
		log.Info("trigger scheduler disabled")
	}

	// HTTP API
	deps := api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		Logger:         log.Component("api"),
		Engine:         engine,
		Tenants:        registry,
		Devices:        goveeClient,
		Push:           push,
		Scheduler:      refresher,
		Metrics:        metricsMgr,
		MetricsHandler: metricsMgr.Handler(),
		DB:             db,
		Hub:            hub,
		Version:        version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
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

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("CURTAIN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

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

// prunePushes deletes push ids older than pushRetention every pruneInterval
// until ctx is done.
func prunePushes(ctx context.Context, store *trigger.SQLiteCursorStore, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := store.PrunePushes(ctx, time.Now().Add(-pushRetention))
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning push ids failed", "error", err)
		case n > 0:
			log.Info("pruned push ids", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
