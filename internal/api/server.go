package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/config"
	"github.com/blakeyoung81/Curtain-Lights/internal/infrastructure/logging"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
	"github.com/blakeyoung81/Curtain-Lights/internal/trigger"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the celebration engine surface the API drives.
type Engine interface {
	Submit(ctx context.Context, req celebration.Request) (celebration.SubmitResult, error)
	Cancel(tenantID, deviceID string) (celebration.CancelResult, error)
	Status(tenantID, deviceID string) (celebration.Status, error)
	Active() []celebration.Status
	TestCommand(ctx context.Context, tenantID, deviceID string, op celebration.TestOp) error
}

// Tenants looks up configured tenants.
type Tenants interface {
	Get(id string) (tenant.Tenant, error)
}

// DeviceLister lists the devices visible to the vendor account.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]govee.Device, error)
}

// PushReceiver accepts pushed payment and celebration events.
type PushReceiver interface {
	ReceiveRaw(ctx context.Context, tenantID string, payload []byte) (trigger.PushResult, error)
}

// Refresher triggers an out-of-band scheduler poll.
type Refresher interface {
	TriggerRefresh()
}

// HTTPMetrics records request counts and latencies.
type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// Connectivity reports whether a broker connection is up.
type Connectivity interface {
	IsConnected() bool
}

// DBStats exposes connection pool statistics.
type DBStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   Engine
	Tenants  Tenants

	Devices        DeviceLister // optional: device listing returns 503 without it
	Push           PushReceiver // optional: payment pushes return 503 without it
	Scheduler      Refresher    // optional: scheduler run returns 503 without it
	Metrics        HTTPMetrics  // optional
	MetricsHandler http.Handler // optional: served at /metrics
	MQTT           Connectivity // optional: reported by /api/v1/system
	DB             DBStats      // optional: reported by /api/v1/system
	Hub            *Hub         // If set, the server uses this hub instead of creating its own
	Version        string
}

// Server is the HTTP API server for Curtain Lights.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	secCfg         config.SecurityConfig
	logger         *logging.Logger
	engine         Engine
	tenants        Tenants
	devices        DeviceLister
	push           PushReceiver
	scheduler      Refresher
	metrics        HTTPMetrics
	metricsHandler http.Handler
	mqtt           Connectivity
	db             DBStats
	version        string
	startTime      time.Time
	server         *http.Server
	hub            *Hub
	tickets        *ticketStore
	cancel         context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("celebration engine is required")
	}
	if deps.Tenants == nil {
		return nil, fmt.Errorf("tenant registry is required")
	}

	return &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         deps.Logger,
		engine:         deps.Engine,
		tenants:        deps.Tenants,
		devices:        deps.Devices,
		push:           deps.Push,
		scheduler:      deps.Scheduler,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		mqtt:           deps.MQTT,
		db:             deps.DB,
		version:        deps.Version,
		startTime:      time.Now(),
		hub:            deps.Hub,
		tickets:        newTicketStore(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub if none was injected, builds the router and
// launches the HTTP listener in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// HealthCheck verifies the API server is running and responsive.
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
