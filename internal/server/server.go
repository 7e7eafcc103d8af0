// Package server exposes the experiment engine over HTTP: beacon-style
// assign/convert endpoints for site traffic, a metrics endpoint for
// reporting surfaces and a token-protected admin listing.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/splitpilot/splitpilot/internal/engine"
	"github.com/splitpilot/splitpilot/internal/stats"
	"github.com/splitpilot/splitpilot/internal/store"
)

type Options struct {
	Port       int
	AdminToken string // generated when empty
	RateLimit  float64
	RateBurst  int
	Params     stats.Params
}

type Server struct {
	store     store.Store
	registry  *engine.Registry
	assignor  *engine.Assignor
	recorder  *engine.Recorder
	params    stats.Params
	token     string
	port      int
	limiter   *rate.Limiter
	router    chi.Router
	log       *zap.Logger
	startTime time.Time
}

func New(s store.Store, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	token := opts.AdminToken
	if token == "" {
		token = generateToken()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 100
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = int(opts.RateLimit) * 2
	}

	srv := &Server{
		store:     s,
		registry:  engine.NewRegistry(s),
		assignor:  engine.NewAssignor(s, log),
		recorder:  engine.NewRecorder(s, log),
		params:    opts.Params,
		token:     token,
		port:      opts.Port,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		log:       log,
		startTime: time.Now(),
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	// Beacon routes are hit cross-origin from customer sites.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}))
		r.Use(s.throttle)
		r.Post("/api/assign", s.handleAssign)
		r.Post("/api/convert", s.handleConvert)
		r.Get("/api/experiments/{id}/metrics", s.handleMetrics)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/admin/experiments", s.handleAdminExperiments)
	})
	return r
}

// Start runs the server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	s.log.Info("server listening", zap.Int("port", s.port))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func generateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "splitpilot-local"
	}
	return hex.EncodeToString(bytes)
}
