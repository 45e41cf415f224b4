package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Clark-Hu/watchlist-api/internal/auth"
	"github.com/Clark-Hu/watchlist-api/internal/config"
	"github.com/Clark-Hu/watchlist-api/internal/metrics"
	"github.com/Clark-Hu/watchlist-api/internal/rating"
	"github.com/Clark-Hu/watchlist-api/internal/repository"
)

// HealthChecker reports whether the backing database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	repo    *repository.Repository
	reviews *rating.Service
	auth    *auth.Manager
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, health HealthChecker, repo *repository.Repository, reviews *rating.Service, authManager *auth.Manager, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	s := &Server{
		cfg:     cfg,
		health:  health,
		repo:    repo,
		reviews: reviews,
		auth:    authManager,
		logger:  logger,
		router:  r,
	}
	s.registerRoutes()
	return s
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(httprate.Limit(s.cfg.APIRatePerMin, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimited),
		))

		r.Get("/platforms/{platformID}", s.handleGetPlatform)
		r.Get("/titles/{titleID}", s.handleGetTitle)
		r.Get("/titles/{titleID}/reviews", s.handleListReviews)
		r.Get("/reviews/{reviewID}", s.handleGetReview)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Authenticate(unauthorized))

			r.Post("/platforms", s.handleCreatePlatform)
			r.Put("/platforms/{platformID}", s.handleUpdatePlatform)
			r.Delete("/platforms/{platformID}", s.handleDeletePlatform)

			r.Post("/titles", s.handleCreateTitle)
			r.Put("/titles/{titleID}", s.handleUpdateTitle)
			r.Delete("/titles/{titleID}", s.handleDeleteTitle)

			r.With(httprate.Limit(s.cfg.ReviewCreateRatePerMin, time.Minute,
				httprate.WithKeyFuncs(keyByUser),
				httprate.WithLimitHandler(rateLimited),
			)).Post("/titles/{titleID}/reviews", s.handleCreateReview)
			r.Put("/reviews/{reviewID}", s.handleUpdateReview)
			r.Delete("/reviews/{reviewID}", s.handleDeleteReview)
		})
	})
}

// keyByUser buckets review submissions by the authenticated caller.
func keyByUser(r *http.Request) (string, error) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		return httprate.KeyByIP(r)
	}
	return "user:" + userID, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
		respondError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unreachable")
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
