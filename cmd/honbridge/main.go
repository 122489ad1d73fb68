// honbridge keeps a session with the hOn appliance cloud, polls every
// appliance on the account and bridges state and commands to MQTT, with an
// optional operator HTTP API and InfluxDB telemetry.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/hon-bridge/migrations"

	"github.com/nerrad567/hon-bridge/internal/api"
	bridge "github.com/nerrad567/hon-bridge/internal/bridges/hon"
	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/cache"
	"github.com/nerrad567/hon-bridge/internal/hon/cloud"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
	"github.com/nerrad567/hon-bridge/internal/hon/session"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/config"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/database"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/mqtt"
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

// startupTimeout bounds the first login and discovery.
const startupTimeout = time.Minute

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(os.Stdout, os.Args[2:], time.Now()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting hOn bridge",
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
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.OpenAndMigrate(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", db.Path())

	commandLog := dispatch.NewSQLiteLog(db.DB)
	store, sess, err := buildStore(cfg, db, commandLog, log)
	if err != nil {
		return err
	}
	defer sess.Close()

	// A failed first discovery is not fatal: the poller and
	// POST /devices/discover retry it.
	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	devices, err := store.Discover(startCtx)
	cancelStart()
	if err != nil {
		log.Warn("initial appliance discovery failed, will retry", "error", err)
	} else {
		log.Info("appliances discovered", "count", len(devices), "session_expires", sess.ExpiresAt())
	}

	checks := map[string]api.HealthChecker{"database": db}

	if cfg.MQTT.Enabled {
		mqttClient, stopBridge, mqttErr := startBridge(ctx, cfg, store, log)
		if mqttErr != nil {
			return mqttErr
		}
		defer func() {
			stopBridge()
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled, appliances are only reachable through the API")
	}

	if cfg.API.Enabled {
		if !cfg.API.Auth.Enabled {
			log.Warn("API auth disabled, anyone who can reach the API can send commands")
		}
		server, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.Component("api"),
			Store:      store,
			CommandLog: commandLog,
			DB:         db,
			Checks:     checks,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred calls run in reverse order: API, bridge and MQTT, session, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// buildStore wires session, cache, cloud client and dispatcher into an
// appliance store.
func buildStore(cfg *config.Config, db *database.DB, commandLog *dispatch.SQLiteLog, log *logging.Logger) (*appliance.Store, *session.Manager, error) {
	sess, err := session.New(sessionConfig(cfg.Account),
		session.WithFrameworkStore(session.NewSQLiteStore(db.DB)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}
	sess.SetLogger(log.Component("session"))

	client := cloud.New(cloud.Config{
		APIURL:        sess.Config().APIURL,
		AppVersion:    sess.Config().AppVersion,
		OS:            sess.Config().OS,
		ContextTTL:    cfg.Cache.ContextTTL,
		StatisticsTTL: cfg.Cache.StatisticsTTL,
		CommandsTTL:   cfg.Cache.CommandsTTL,
	}, sess, cache.New(), cloud.WithHTTPClient(sess.HTTPClient()))
	client.SetLogger(log.Component("cloud"))

	scfg := sess.Config()
	dispatcher := dispatch.New(client, sess, dispatch.Identity{
		MobileID:    sess.MobileID(),
		OS:          scfg.OS,
		OSVersion:   scfg.OSVersion,
		AppVersion:  scfg.AppVersion,
		DeviceModel: scfg.DeviceModel,
	}, dispatch.WithRecorder(commandLog))
	dispatcher.SetLogger(log.Component("dispatch"))

	store := appliance.NewStore(client, dispatcher, appliance.WithContextTTL(cfg.Cache.ContextTTL))
	store.SetLogger(log.Component("appliance"))
	return store, sess, nil
}

// sessionConfig converts the account section of the configuration.
func sessionConfig(a config.AccountConfig) session.Config {
	return session.Config{
		Email:          a.Email,
		Password:       a.Password,
		Framework:      a.Framework,
		AuthURL:        a.AuthURL,
		APIURL:         a.APIURL,
		AppVersion:     a.AppVersion,
		OS:             a.OS,
		OSVersion:      a.OSVersion,
		DeviceModel:    a.DeviceModel,
		SessionTimeout: a.SessionTimeout,
		RefreshMargin:  a.RefreshMargin,
		HTTPTimeout:    a.HTTPTimeout,
	}
}

// startBridge connects to MQTT, optionally to InfluxDB, and starts the
// polling bridge. The returned func stops the bridge and closes InfluxDB.
func startBridge(ctx context.Context, cfg *config.Config, store *appliance.Store, log *logging.Logger) (*mqtt.Client, func(), error) {
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", mqttClient.Topics().Prefix,
	)

	opts := bridge.Options{
		Store:    store,
		MQTT:     mqttClient,
		Topics:   mqttClient.Topics(),
		Interval: cfg.Polling.Interval,
		QoS:      mqttClient.QoS(),
		Logger:   log.Component("bridge"),
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			mqttClient.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		opts.Telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	closeInflux := func() {
		if influxClient == nil {
			return
		}
		log.Info("closing InfluxDB connection")
		if closeErr := influxClient.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}

	b, err := bridge.New(opts)
	if err == nil {
		err = b.Start(ctx)
	}
	if err != nil {
		closeInflux()
		mqttClient.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started", "interval", cfg.Polling.Interval)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected, republishing appliance state")
		go b.Republish()
	})

	return mqttClient, func() {
		log.Info("stopping bridge")
		b.Stop()
		closeInflux()
	}, nil
}

// printToken writes an operator token for the API, signed with the
// configured secret. Usage: honbridge token [subject].
func printToken(out io.Writer, args []string, now time.Time) error {
	subject := "operator"
	if len(args) > 0 {
		subject = args[0]
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.API.Auth.Enabled {
		return fmt.Errorf("api.auth is disabled")
	}

	token, err := api.IssueToken(cfg.API.Auth, subject, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns HON_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("HON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every check once and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
