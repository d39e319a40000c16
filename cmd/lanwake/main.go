// lanwake - Wake-on-LAN and reachability service
//
// lanwake keeps a registry of machines, sends magic packets to wake them and
// polls their endpoints so clients can see which ones are up. It exposes a
// REST and WebSocket API, and optionally mirrors status to MQTT and
// InfluxDB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/lanwake/migrations"

	"github.com/nerrad567/lanwake/internal/api"
	"github.com/nerrad567/lanwake/internal/audit"
	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/infrastructure/config"
	"github.com/nerrad567/lanwake/internal/infrastructure/database"
	"github.com/nerrad567/lanwake/internal/infrastructure/influxdb"
	"github.com/nerrad567/lanwake/internal/infrastructure/logging"
	"github.com/nerrad567/lanwake/internal/infrastructure/mqtt"
	"github.com/nerrad567/lanwake/internal/monitor"
	"github.com/nerrad567/lanwake/internal/reachability"
	"github.com/nerrad567/lanwake/internal/statusbridge"
	"github.com/nerrad567/lanwake/internal/waker"
	"github.com/nerrad567/lanwake/internal/wol"
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

func main() {
	issueToken := flag.String("issue-token", "", "print an API token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 0, "lifetime of an issued token (0 = no expiry)")
	flag.Parse()

	if *issueToken != "" {
		if err := printToken(os.Stdout, *issueToken, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancelled on Ctrl+C or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting lanwake",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"storage", cfg.Storage.Backend,
	)

	// Device registry
	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	if loadErr := registry.Load(ctx, store); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Len())

	// Reachability monitor
	prober := reachability.NewProber()
	prober.SetLogger(log.Component("reachability"))

	scheduler := monitor.NewScheduler(monitor.Config{
		Interval:       cfg.Monitor.Interval,
		Timeout:        cfg.Monitor.Timeout,
		Jitter:         cfg.Monitor.Jitter,
		ResyncInterval: cfg.Monitor.ResyncInterval,
		ShutdownGrace:  cfg.Monitor.ShutdownGrace,
	}, registry, prober)
	scheduler.SetLogger(log.Component("monitor"))

	// Wake service
	transmitter := wol.NewTransmitter(cfg.Wake.SendTimeout)
	transmitter.SetLogger(log.Component("wol"))

	wakeSvc := waker.NewService(waker.Config{
		Broadcast:  cfg.Wake.BroadcastAddr(),
		Ports:      cfg.Wake.PortList(),
		ProbeDelay: cfg.Monitor.WakeProbeDelay,
	}, registry, transmitter, scheduler)
	wakeSvc.SetLogger(log.Component("waker"))

	// Activity trail lives alongside the devices table.
	var auditWriter *audit.Writer
	if db != nil {
		auditWriter = audit.NewWriter(audit.NewSQLiteRepository(db.DB))
		auditWriter.SetLogger(log.Component("audit"))
		wakeSvc.AddObserver(auditWriter)
	} else {
		log.Info("audit trail disabled for the yaml store")
	}

	// Optional integrations
	var bridgeOpts []statusbridge.Option

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
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", mqttClient.Topics().Prefix,
		)
		bridgeOpts = append(bridgeOpts, statusbridge.WithMQTT(mqttClient, wakeSvc))
	} else {
		log.Info("MQTT disabled")
	}

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		bridgeOpts = append(bridgeOpts, statusbridge.WithRecorder(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	var bridge *statusbridge.Bridge
	if len(bridgeOpts) > 0 {
		// Subscribes now, before the scheduler publishes its first events.
		bridge = statusbridge.New(scheduler, registry, bridgeOpts...)
		bridge.SetLogger(log.Component("statusbridge"))
		wakeSvc.AddObserver(bridge)
	}

	// API server
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Monitor:  scheduler,
		Waker:    wakeSvc,
		Audit:    auditWriter,
		Version:  version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		apiDeps.InfluxDB = influxClient
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	wakeSvc.AddObserver(apiServer.Hub())

	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled; set security.jwt.secret to require tokens")
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	auditDone := make(chan struct{})
	if auditWriter != nil {
		go func() {
			defer close(auditDone)
			auditWriter.Run(runCtx)
		}()
	} else {
		close(auditDone)
	}

	bridgeDone := make(chan struct{})
	if bridge != nil {
		go func() {
			defer close(bridgeDone)
			if runErr := bridge.Run(runCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error("status bridge stopped", "error", runErr)
			}
		}()
	} else {
		close(bridgeDone)
	}

	if startErr := apiServer.Start(runCtx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	// Subscribers are in place; start probing.
	scheduler.Start(runCtx)
	defer scheduler.Stop()

	if err := healthCheck(ctx, apiServer, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", apiServer.Addr(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	stopRun()
	scheduler.Stop()

	graceCtx, cancelGrace := context.WithTimeout(context.Background(), cfg.Monitor.ShutdownGrace)
	defer cancelGrace()
	select {
	case <-bridgeDone:
	case <-graceCtx.Done():
		log.Warn("status bridge still running after grace period")
	}
	select {
	case <-auditDone:
	case <-graceCtx.Done():
		log.Warn("audit writer still draining after grace period")
	}

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, then the database.
	log.Info("lanwake stopped")
	return nil
}

// openStore returns the configured registry store. For the sqlite backend
// it also returns the open, migrated database, which the caller closes.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (device.Store, *database.DB, error) {
	if cfg.Storage.Backend == config.BackendYAML {
		log.Info("using YAML device store", "path", cfg.Storage.File)
		return device.NewFileStore(cfg.Storage.File), nil, nil
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	log.Info("database migrations complete")

	return device.NewSQLiteStore(db.DB), db, nil
}

// getConfigPath returns the configuration file path.
// Uses LANWAKE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LANWAKE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the API is serving and the optional integrations are
// reachable. Either client may be nil when disabled.
func healthCheck(ctx context.Context, apiServer *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
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
