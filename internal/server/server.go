package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chereta-io/chereta/internal/auth"
	"github.com/chereta-io/chereta/internal/ratelimit"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/service/feedback"
	"github.com/chereta-io/chereta/internal/service/matcher"
	"github.com/chereta-io/chereta/internal/service/profile"
	"github.com/chereta-io/chereta/internal/storage"
)

// Server is the recommendation HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Searcher, Reembedder.
type Config struct {
	// Required dependencies.
	DB          *storage.DB
	JWTMgr      *auth.JWTManager
	MatcherSvc  *matcher.Service
	FeedbackSvc *feedback.Service
	ProfileSvc  *profile.Service
	Logger      *slog.Logger

	// Optional dependencies (nil = disabled).
	Reembedder *feedback.Reembedder
	Limiter    ratelimit.Limiter
	Searcher   search.Searcher

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		MatcherSvc:          cfg.MatcherSvc,
		FeedbackSvc:         cfg.FeedbackSvc,
		Reembedder:          cfg.Reembedder,
		ProfileSvc:          cfg.ProfileSvc,
		Searcher:            cfg.Searcher,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Rate limit rules: authenticated endpoints key on the user,
	// token issuance keys on the client IP.
	userRL := ratelimit.Middleware(cfg.Limiter, "user", userKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Recommendations.
	mux.Handle("GET /recommendations", userRL(http.HandlerFunc(h.HandleRecommendations)))
	mux.Handle("GET /recommendations/tenders/{id}/similar", userRL(http.HandlerFunc(h.HandleSimilarTenders)))
	mux.Handle("POST /recommendations/feedback/{tender_id}", userRL(http.HandlerFunc(h.HandleFeedback)))
	mux.Handle("GET /recommendations/feedback/stats", userRL(http.HandlerFunc(h.HandleFeedbackStats)))
	mux.Handle("POST /recommendations/refresh-profile-embedding", userRL(http.HandlerFunc(h.HandleRefreshEmbedding)))

	// Company profile.
	mux.Handle("POST /company-profile", userRL(http.HandlerFunc(h.HandleCreateProfile)))
	mux.Handle("GET /company-profile", userRL(http.HandlerFunc(h.HandleGetProfile)))
	mux.Handle("PUT /company-profile", userRL(http.HandlerFunc(h.HandleUpdateProfile)))
	mux.Handle("GET /company-profile/options", userRL(http.HandlerFunc(h.HandleProfileOptions)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the authenticated user id for rate limiting.
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
