package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"MatrixConnectionRelay/internal/auth"
	"MatrixConnectionRelay/internal/config"
	"MatrixConnectionRelay/internal/dashboard"
	"MatrixConnectionRelay/internal/middleware"
	"MatrixConnectionRelay/internal/ratelimit"
	"MatrixConnectionRelay/internal/relay"
	"MatrixConnectionRelay/internal/relaylog"
	"MatrixConnectionRelay/internal/web"
)

/*
ROUTES

GET  /                  form page
POST /                  relay (guarded chain below)
GET  /healthz           liveness
GET  /api/relay/stats   counters
GET  /api/relay/log     relay log tail (only with the bearer guard on)

RELAY CHAIN (TOP to BOTTOM):

1. Rate limiting      :   only when configured
2. Bearer guard       :   only when configured
3. Request guard      :   body cap + content type
4. Relay              :   forward, log both payloads, copy answer back
*/

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        config.Config
	log        zerolog.Logger
	relayLog   *relaylog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// New wires every component from cfg. The caller owns Close.
func New(cfg config.Config, log zerolog.Logger) (*Server, error) {
	relayLog, err := relaylog.NewLogger(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("server: open relay log: %w", err)
	}

	s := &Server{cfg: cfg, log: log, relayLog: relayLog}

	handler, err := s.routes()
	if err != nil {
		_ = relayLog.Close()
		return nil, err
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Timeouts.Read,
		WriteTimeout: cfg.Timeouts.Write,
		IdleTimeout:  cfg.Timeouts.Idle,
	}
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	stats := dashboard.NewStatsCollector()

	rl, err := relay.New(s.cfg.UpstreamURL,
		relay.WithTimeout(s.cfg.Timeouts.Upstream),
		relay.WithPayloadLog(s.relayLog),
		relay.WithRecorder(stats),
		relay.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}

	page, err := web.NewPage(web.DefaultPageData())
	if err != nil {
		return nil, err
	}

	status := &dashboard.Handlers{Stats: stats, LogPath: s.cfg.LogPath}

	var guards []func(http.Handler) http.Handler

	if s.cfg.RateLimit.Enabled() {
		limiter := ratelimit.NewLimiter(s.cfg.RateLimit.PerSecond, s.cfg.RateLimit.Burst)
		status.Limiter = limiter
		guards = append(guards, limiter.Middleware)
	}

	if s.cfg.Auth.Enabled() {
		key, err := auth.LoadPublicKey(s.cfg.Auth.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		guards = append(guards, auth.BearerGuard(auth.JWTConfig{
			Issuer:    s.cfg.Auth.Issuer,
			Audience:  s.cfg.Auth.Audience,
			PublicKey: key,
		}))
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}).Handler)
	r.Use(chimw.GetHead)

	r.Get("/healthz", dashboard.ServeHealth)
	r.Get("/", page.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(guards...)

		r.With(middleware.ValidateRequest(s.cfg.MaxBodyBytes)).Post("/", rl.ServeHTTP)
		r.Get("/api/relay/stats", status.ServeStats)

		// The log holds every question and answer.
		if s.cfg.Auth.Enabled() {
			r.Get("/api/relay/log", status.ServeLog)
		}
	})

	s.log.Info().
		Str("upstream", rl.UpstreamURL()).
		Str("relay_log", s.cfg.LogPath).
		Bool("rate_limit", s.cfg.RateLimit.Enabled()).
		Bool("auth", s.cfg.Auth.Enabled()).
		Msg("relay configured")

	return r, nil
}

// Handler exposes the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight relays.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Matrix Connection relay listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info().Msg("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Close releases the relay log.
func (s *Server) Close() error {
	return s.relayLog.Close()
}
