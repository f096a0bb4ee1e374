package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/studieo-app/studieo-api/internal/application"
	"github.com/studieo-app/studieo-api/internal/config"
	"github.com/studieo-app/studieo-api/internal/identity"
	"github.com/studieo-app/studieo-api/internal/notify"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	manager        *application.Manager
	repo           storage.Repository
	dispatcher     *notify.RedisDispatcher
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	manager *application.Manager,
	repo storage.Repository,
	dispatcher *notify.RedisDispatcher,
	provider identity.Provider,
) *Server {
	s := &Server{
		config:         cfg,
		manager:        manager,
		repo:           repo,
		dispatcher:     dispatcher,
		authMiddleware: NewAuthMiddleware(provider),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		r.Route("/applications", func(r chi.Router) {
			r.Post("/", s.handleCreateApplication)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetApplication)
				r.Delete("/", s.handleDeleteApplication)
				r.Post("/submit", s.handleSubmitApplication)
				r.Post("/accept", s.handleAcceptApplication)
				r.Post("/reject", s.handleRejectApplication)
				r.Post("/withdraw", s.handleWithdrawApplication)
				r.Post("/invite-response", s.handleInviteResponse)
				r.Get("/design-doc", s.handleDesignDocURL)
			})
		})

		r.Get("/limits", s.handleCheckLimits)
		r.Get("/events", s.handleEventsWS)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
