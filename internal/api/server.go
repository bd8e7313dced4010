// Package api provides the HTTP and WebSocket surface for Casement Core.
//
// It exposes the credential endpoints (register, login, admin login,
// revoke), a read-only state snapshot, and the relay WebSocket that the
// embedded device and observer clients speak over.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/casement-core/internal/auth"
	"github.com/nerrad567/casement-core/internal/infrastructure/config"
	"github.com/nerrad567/casement-core/internal/infrastructure/logging"
	"github.com/nerrad567/casement-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Gate and Users may be nil when the credential store is unreachable at
// startup: the server then runs degraded, where relay traffic is still
// brokered, but authenticated routes answer 503.
type Deps struct {
	Config   config.APIConfig
	Relay    config.RelayConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   *relay.Engine
	Gate     *auth.Gate
	Users    auth.UserRepository
	Version  string
}

// Server is the HTTP API server for Casement Core.
type Server struct {
	cfg      config.APIConfig
	relayCfg config.RelayConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	engine   *relay.Engine
	gate     *auth.Gate
	users    auth.UserRepository
	version  string
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("relay engine is required")
	}
	// Gate/Users are optional; without them the relay still runs but
	// auth routes degrade to 503.

	return &Server{
		cfg:      deps.Config,
		relayCfg: deps.Relay,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		engine:   deps.Engine,
		gate:     deps.Gate,
		users:    deps.Users,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	_, s.cancel = context.WithCancel(ctx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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

// Handler returns the configured router without starting a listener.
// Used by tests to drive the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}
