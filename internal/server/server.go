// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mihendy/pp-2025/internal/blob"
	"github.com/Mihendy/pp-2025/internal/cache"
	"github.com/Mihendy/pp-2025/internal/chat"
	"github.com/Mihendy/pp-2025/internal/config"
	"github.com/Mihendy/pp-2025/internal/groups"
	"github.com/Mihendy/pp-2025/internal/identity"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/ratelimit"
	"github.com/Mihendy/pp-2025/internal/store"
	"github.com/Mihendy/pp-2025/internal/wopi"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required: relational store for users, groups, chats and permissions.
	Store store.Driver

	// Required: object storage for document contents.
	Blobs blob.Store

	// Required: cache backing editor sessions and rate limiting.
	Cache cache.CacheWithCounter
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	deps       *Deps

	authSvc *identity.Service

	authHandler   *identity.Handler
	groupsHandler *groups.Handler
	chatHandler   *chat.Handler
	wsHandler     *chat.WSHandler
	filesHandler  *wopi.Handler
	bridge        *wopi.Bridge
	loginLimiter  *ratelimit.Limiter

	acmeMgr      *ACMEManager
	challengeSrv *http.Server
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	// Fail fast: validate required dependencies
	if err := validateDeps(deps); err != nil {
		return nil, err
	}
	logger = logutil.NoopIfNil(logger)

	userAuth := identity.NewUserAuth(cfg.Auth.BcryptCost)
	tokens := identity.NewTokenIssuer(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTTLHours)*time.Hour,
		time.Duration(cfg.Auth.RefreshTTLDays)*24*time.Hour,
	)
	authSvc := identity.NewService(deps.Store, userAuth, tokens, cfg.Auth.EmailDomain, logger)

	groupsSvc := groups.NewService(deps.Store, deps.Store, deps.Store, logger)

	chatSvc := chat.NewService(deps.Store, deps.Store, deps.Store, cfg.Chat.HistoryLimit, logger)
	chatRegistry := chat.NewRegistry(deps.Store, logger)

	wopiSvc := wopi.NewService(deps.Store, deps.Store, deps.Blobs, deps.Cache, cfg.Wopi.AllowedExtensions, logger)

	loginLimiter := ratelimit.New(deps.Cache, &ratelimit.Config{
		RequestsPerWindow: int64(cfg.Auth.LoginRatePerMinute),
		Window:            cache.TTLRateLimit,
		KeyPrefix:         "login:",
	})

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		deps:          deps,
		authSvc:       authSvc,
		authHandler:   identity.NewHandler(authSvc, logger),
		groupsHandler: groups.NewHandler(groupsSvc, deps.Store, logger),
		chatHandler:   chat.NewHandler(chatSvc, logger),
		wsHandler:     chat.NewWSHandler(chatSvc, chatRegistry, authSvc, logger),
		filesHandler:  wopi.NewHandler(wopiSvc, cfg.ExternalOrigin, logger),
		bridge:        wopi.NewBridge(wopiSvc, deps.Blobs, authSvc, logger),
		loginLimiter:  loginLimiter,
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"external_origin", s.cfg.ExternalOrigin,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "static", "selfsigned":
		tlsManager := NewTLSManager(&s.cfg.TLS, s.logger)
		hostname := extractHostname(s.cfg.ExternalOrigin)
		tlsConfig, err := tlsManager.GetTLSConfig(hostname)
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		if tlsConfig == nil {
			return fmt.Errorf("TLS config is nil for mode %s", s.cfg.TLS.Mode)
		}

		s.httpServer.TLSConfig = tlsConfig
		s.logger.Info("starting server with TLS", "mode", s.cfg.TLS.Mode)

		// Certs live in TLSConfig.Certificates; the file arguments stay empty.
		return s.httpServer.ListenAndServeTLS("", "")

	case "acme":
		return s.startACME(ctx)

	default:
		return fmt.Errorf("%w: %s", ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// startACME obtains a certificate via lego and serves TLS with it. The
// HTTP-01 challenge handler runs on a plain HTTP listener on port 80.
func (s *Server) startACME(ctx context.Context) error {
	s.acmeMgr = NewACMEManager(&s.cfg.TLS.ACME, s.logger)

	s.challengeSrv = &http.Server{
		Addr:         ":80",
		Handler:      s.acmeMgr.ChallengeHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.challengeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ACME challenge listener failed", "error", err)
		}
	}()

	if err := s.acmeMgr.Init(ctx); err != nil {
		return fmt.Errorf("ACME initialization failed: %w", err)
	}

	s.httpServer.TLSConfig = s.acmeMgr.GetTLSConfig()
	s.logger.Info("starting server with ACME TLS", "domain", s.cfg.TLS.ACME.Domain)
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	if s.challengeSrv != nil {
		if err := s.challengeSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("ACME challenge listener shutdown failed", "error", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// extractProviderFQDN extracts the host:port from an external origin URL.
func extractProviderFQDN(externalOrigin string) string {
	fqdn := externalOrigin
	if idx := len("https://"); len(fqdn) > idx && fqdn[:idx] == "https://" {
		fqdn = fqdn[idx:]
	} else if idx := len("http://"); len(fqdn) > idx && fqdn[:idx] == "http://" {
		fqdn = fqdn[idx:]
	}
	if len(fqdn) > 0 && fqdn[len(fqdn)-1] == '/' {
		fqdn = fqdn[:len(fqdn)-1]
	}
	return fqdn
}

// extractHostname extracts just the hostname from an external origin URL.
// Certificate generation needs the hostname without the port.
func extractHostname(externalOrigin string) string {
	fqdn := extractProviderFQDN(externalOrigin)
	for i := len(fqdn) - 1; i >= 0; i-- {
		if fqdn[i] == ':' {
			return fqdn[:i]
		}
		if fqdn[i] == ']' {
			// IPv6 address like [::1]:8080
			break
		}
	}
	return fqdn
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Store == nil {
		return fmt.Errorf("%w: Store", ErrMissingDep)
	}
	if deps.Blobs == nil {
		return fmt.Errorf("%w: Blobs", ErrMissingDep)
	}
	if deps.Cache == nil {
		return fmt.Errorf("%w: Cache", ErrMissingDep)
	}
	return nil
}
