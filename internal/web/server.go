// Package web provides the HTTP API for starting and following catalog
// imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/service"
	mw "github.com/JonMunkholm/CatalogImport/internal/web/middleware"
)

// ImportService is the part of *service.Service the handlers use.
type ImportService interface {
	Start(ctx context.Context, req service.Request) (string, error)
	Progress(id string) (service.Progress, error)
	Subscribe(id string) (<-chan service.Progress, error)
	Result(ctx context.Context, id string) (*service.Result, error)
	Errors(id string) ([]core.RowError, error)
	Cancel(id string) error
	ProductTypes() []service.TypeInfo
	LimiterStatus() service.LimiterStatus
}

// Pinger checks a backing dependency for /healthz.
type Pinger func(ctx context.Context) error

// Server is the HTTP server of the import API.
type Server struct {
	cfg     *config.Config
	imports ImportService
	metrics http.Handler
	ping    Pinger
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires the routes. metrics and ping may be nil.
func NewServer(cfg *config.Config, imports ImportService, metrics http.Handler, ping Pinger) *Server {
	s := &Server{
		cfg:     cfg,
		imports: imports,
		metrics: metrics,
		ping:    ping,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	limiter := newRateLimiter(100, time.Minute)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(limiter.middleware)

		// Streaming and blocking endpoints run without the request timeout.
		r.Get("/imports/{id}/events", s.handleImportEvents)
		r.Get("/imports/{id}/result", s.handleImportResult)

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}
			r.Get("/product-types", s.handleProductTypes)
			r.Post("/imports", s.handleStartImport)
			r.Get("/imports/{id}", s.handleImportProgress)
			r.Get("/imports/{id}/errors", s.handleImportErrors)
			r.Post("/imports/{id}/cancel", s.handleCancelImport)
		})
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter keeps a token bucket per client IP.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter allows n requests per window and bursts of up to n.
func newRateLimiter(n int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Every(window / time.Duration(n)),
		burst:     n,
		idle:      2 * window,
		lastSweep: time.Now(),
	}
}

// allow consumes a token for ip. Visitors idle for longer than two windows
// are dropped at most once per window.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.idle/2 {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idle {
				delete(rl.visitors, key)
			}
		}
		rl.lastSweep = now
	}
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r.RemoteAddr)) {
			w.Header().Set("Retry-After", "60")
			writeJSONStatus(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many requests",
				Code:    "HTTP429",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// writeJSON encodes v with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as the response body. Encoding errors are
// logged since the headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
