// Package api assembles the HTTP surface: REST routes, the websocket
// endpoint, and the middleware stack.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Kalyan-pallati/chat-app/internal/api/middleware"
	"github.com/Kalyan-pallati/chat-app/internal/auth"
	"github.com/Kalyan-pallati/chat-app/internal/handlers"
	"github.com/Kalyan-pallati/chat-app/internal/realtime"
	"github.com/Kalyan-pallati/chat-app/internal/store"
)

// RouterConfig carries the wired dependencies for NewRouter.
type RouterConfig struct {
	Logger    zerolog.Logger
	DB        store.DataStore
	Redis     *store.RedisStore // optional
	Registry  *realtime.Registry
	Tokens    *auth.TokenIssuer
	Whitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis)
	if cfg.Redis != nil {
		limiter := middleware.NewRateLimiter(cfg.Redis.Client(), cfg.Logger, middleware.RateLimiterConfig{
			Whitelist: cfg.Whitelist,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - the web client may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handlers and middleware
	h := handlers.NewHandler(cfg.DB, cfg.Redis, cfg.Registry, cfg.Tokens)
	authmw := middleware.NewAuthMiddleware(cfg.DB, cfg.Tokens)
	ws := realtime.NewHandler(cfg.Registry, cfg.DB, cfg.Tokens, presenceOrNil(cfg.Redis), cfg.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Get("/who/{id}", h.Who)
	r.Get("/find", h.FindUsers)

	// Realtime endpoint; the token rides in the query string and is checked
	// inside the handshake, not by the HTTP middleware.
	r.Get("/ws", ws.ServeWS)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)

		r.Get("/history/{friendID}", h.History)
		r.Get("/friends", h.ListFriends)
		r.Post("/friends/request/{username}", h.SendFriendRequest)
		r.Get("/friends/requests/pending", h.PendingRequests)
		r.Post("/friends/accept/{id}", h.AcceptFriendRequest)
		r.Post("/friends/reject/{id}", h.RejectFriendRequest)
	})

	return r
}

// presenceOrNil avoids handing the realtime handler a typed-nil interface
// when Redis is not configured.
func presenceOrNil(redis *store.RedisStore) realtime.Presence {
	if redis == nil {
		return nil
	}
	return redis
}
