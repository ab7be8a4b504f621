// Package server exposes a kv.Namespace over HTTP with per-identity
// authorization.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"trifle/internal/auth"
	"trifle/internal/kv"
)

const (
	allowRemoteEnvKey = "TRIFLE_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	DefaultMaxValueBytes = 16 << 20 // 16 MiB
)

// Config holds server tunables.
type Config struct {
	Addr    string
	Backend string
	// MaxValueBytes caps PUT bodies; <= 0 means DefaultMaxValueBytes.
	MaxValueBytes int64
	// VerifyFileHashes rejects file/* writes whose body does not hash to the key.
	VerifyFileHashes bool
	// RateLimit is requests per second per identity; <= 0 disables limiting.
	RateLimit float64
	RateBurst int
}

// Server wraps HTTP handlers for the KV API.
type Server struct {
	cfg     Config
	ns      kv.Namespace
	authn   auth.Authenticator
	limiter *identityRateLimiter
	metrics *metrics
	logger  *slog.Logger
}

// New creates a new server instance.
func New(ns kv.Namespace, authn auth.Authenticator, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = DefaultMaxValueBytes
	}
	return &Server{
		cfg:     cfg,
		ns:      ns,
		authn:   authn,
		limiter: newIdentityRateLimiter(cfg.RateLimit, cfg.RateBurst),
		metrics: newMetrics(),
		logger:  logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withRequestLogging(s.withIdentity(s.withRateLimit(s.routes()))))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.cfg.Addr, "backend", s.cfg.Backend)
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ListenAddr converts a base URL or host:port into a listen address.
// Non-loopback hosts require TRIFLE_ALLOW_REMOTE=true.
func ListenAddr(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("listen address is required")
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(raw)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return raw, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true")
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
