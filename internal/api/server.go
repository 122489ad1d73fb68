package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/dispatch"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/config"
	"github.com/nerrad567/hon-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Store is the part of the appliance store the API reads and commands.
// *appliance.Store satisfies it.
type Store interface {
	Discover(ctx context.Context) ([]*appliance.Device, error)
	Devices() []*appliance.Device
	Device(mac string) (*appliance.Device, error)
	Refresh(ctx context.Context, dev *appliance.Device) error
	LoadCommandsIfNeeded(ctx context.Context, dev *appliance.Device) error
	Execute(ctx context.Context, mac, name, program string, overrides map[string]any) (dispatch.Result, error)
}

// CommandLog lists dispatched commands. *dispatch.SQLiteLog satisfies it.
type CommandLog interface {
	Recent(ctx context.Context, mac string, limit int) ([]dispatch.Entry, error)
}

// HealthChecker is implemented by every infrastructure client
// (database, MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Store      Store
	CommandLog CommandLog // optional: /devices/{mac}/log returns 503 without it
	DB         DBStatter  // optional: pool statistics in /metrics

	// Checks are reported by /health under their map key.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the operator HTTP API server.
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	store      Store
	commandLog CommandLog
	db         DBStatter
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("appliance store is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		store:      deps.Store,
		commandLog: deps.CommandLog,
		db:         deps.DB,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
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
