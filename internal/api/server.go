package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/audit"
	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/infrastructure/config"
	"github.com/nerrad567/lanwake/internal/infrastructure/logging"
	"github.com/nerrad567/lanwake/internal/monitor"
	"github.com/nerrad567/lanwake/internal/wol"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Registry is the device registry surface the API drives.
// *device.Registry satisfies it.
type Registry interface {
	Add(ctx context.Context, label string, hw address.HardwareAddress, endpoints []address.HostEndpoint, wakeTargets []wol.Destination) (string, error)
	Update(ctx context.Context, key string, changes device.Changes) error
	Remove(ctx context.Context, key string) error
	Reorder(ctx context.Context, key string, index int) error
	List() device.Snapshot
	Get(key string) (device.Device, error)
}

// StatusSource provides statuses and the change stream.
// *monitor.Scheduler satisfies it.
type StatusSource interface {
	Status(key string) monitor.Status
	Statuses() map[string]monitor.Status
	Subscribe() *monitor.Subscription
}

// Waker sends magic packets. *waker.Service satisfies it.
type Waker interface {
	Wake(ctx context.Context, key string) error
}

// ConnectionChecker reports whether an optional integration is connected.
// *mqtt.Client and *influxdb.Client satisfy it.
type ConnectionChecker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry Registry
	Monitor  StatusSource
	Waker    Waker
	Hub      *Hub          // optional; created in New when nil
	Audit    *audit.Writer // optional; nil disables the trail

	// Optional integrations reported by /metrics.
	MQTT     ConnectionChecker
	InfluxDB ConnectionChecker

	Version string
}

// Server is the HTTP API server.
//
// It is created with New and started with Start.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	registry Registry
	monitor  StatusSource
	waker    Waker
	mqtt     ConnectionChecker
	influx   ConnectionChecker
	audit    *audit.Writer
	version  string

	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new API server with the given dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("status source is required")
	}
	if deps.Waker == nil {
		return nil, fmt.Errorf("waker is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		monitor:   deps.Monitor,
		waker:     deps.Waker,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		audit:     deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. Register it as a waker.Observer to stream
// wake attempts to clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. The hub relays
// status events until Close or until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx, s.monitor.Subscribe())

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
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
