package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/chereta-io/chereta/internal/auth"
	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/search"
	"github.com/chereta-io/chereta/internal/service/feedback"
	"github.com/chereta-io/chereta/internal/service/matcher"
	"github.com/chereta-io/chereta/internal/service/profile"
	"github.com/chereta-io/chereta/internal/storage"
)

// Per-endpoint deadlines. Recommendation requests fan out to the vector
// store and scorer; interaction writes are a single transaction.
const (
	recommendTimeout = 2 * time.Second
	similarTimeout   = 1 * time.Second
	feedbackTimeout  = 500 * time.Millisecond
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	matcherSvc          *matcher.Service
	feedbackSvc         *feedback.Service
	reembedder          *feedback.Reembedder
	profileSvc          *profile.Service
	searcher            search.Searcher
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Searcher, Reembedder.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	MatcherSvc          *matcher.Service
	FeedbackSvc         *feedback.Service
	Reembedder          *feedback.Reembedder
	ProfileSvc          *profile.Service
	Searcher            search.Searcher
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		matcherSvc:          d.MatcherSvc,
		feedbackSvc:         d.FeedbackSvc,
		reembedder:          d.Reembedder,
		profileSvc:          d.ProfileSvc,
		searcher:            d.Searcher,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Hash anyway so response timing does not reveal whether the email exists.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, user.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user.ID, user.CompanyID, user.Email)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleRecommendations handles GET /recommendations.
func (h *Handlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	filters, err := parseRecommendFilters(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r, recommendTimeout)
	defer cancel()

	resp, err := h.matcherSvc.Recommend(ctx, claims.CompanyID, claims.UserID(), filters)
	if err != nil {
		switch {
		case errors.Is(err, matcher.ErrProfileNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "company profile not found, complete onboarding first")
		case errors.Is(err, matcher.ErrProfileIncomplete):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "company profile is missing required matching fields")
		default:
			h.writeInternalError(w, r, "recommendation request failed", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleSimilarTenders handles GET /recommendations/tenders/{id}/similar.
func (h *Handlers) HandleSimilarTenders(w http.ResponseWriter, r *http.Request) {
	tenderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid tender id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a non-negative integer")
			return
		}
	}

	ctx, cancel := contextWithTimeout(r, similarTimeout)
	defer cancel()

	resp, err := h.matcherSvc.Similar(ctx, tenderID, limit)
	if err != nil {
		switch {
		case errors.Is(err, matcher.ErrReferenceNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "tender not found")
		case errors.Is(err, matcher.ErrReferenceNotEmbedded):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "tender has not been embedded yet")
		default:
			h.writeInternalError(w, r, "similar tenders request failed", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleFeedback handles POST /recommendations/feedback/{tender_id}.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	tenderID, err := uuid.Parse(r.PathValue("tender_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid tender id")
		return
	}

	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	ctx, cancel := contextWithTimeout(r, feedbackTimeout)
	defer cancel()

	resp, err := h.feedbackSvc.RecordInteraction(ctx, claims.UserID(), claims.CompanyID, tenderID, req)
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrInvalidInteraction):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		case errors.Is(err, feedback.ErrTenderNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "tender not found")
		default:
			h.writeInternalError(w, r, "failed to record interaction", err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleFeedbackStats handles GET /recommendations/feedback/stats.
func (h *Handlers) HandleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	stats, err := h.feedbackSvc.Stats(r.Context(), claims.UserID())
	if err != nil {
		h.writeInternalError(w, r, "failed to load interaction stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleRefreshEmbedding handles POST /recommendations/refresh-profile-embedding.
func (h *Handlers) HandleRefreshEmbedding(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	if h.reembedder == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "embedding refresh is not configured")
		return
	}

	reembedded, err := h.reembedder.RefreshByCompany(r.Context(), claims.CompanyID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "company profile not found")
		case errors.Is(err, feedback.ErrEmbeddingUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "embedding provider unavailable, try again later")
		default:
			h.writeInternalError(w, r, "failed to refresh profile embedding", err)
		}
		return
	}

	msg := "profile embedding refreshed"
	if !reembedded {
		msg = "refresh already in progress"
	}
	writeJSON(w, r, http.StatusOK, model.RefreshEmbeddingResponse{
		Reembedded: reembedded,
		Message:    msg,
	})
}

// HandleCreateProfile handles POST /company-profile.
func (h *Handlers) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.CreateProfileRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	created, err := h.profileSvc.Create(r.Context(), claims.CompanyID, req)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrInvalid):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		case errors.Is(err, profile.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "company profile already exists")
		default:
			h.writeInternalError(w, r, "failed to create profile", err)
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, created)
}

// HandleGetProfile handles GET /company-profile.
func (h *Handlers) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	p, err := h.profileSvc.Get(r.Context(), claims.CompanyID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "company profile not found")
			return
		}
		h.writeInternalError(w, r, "failed to load profile", err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleUpdateProfile handles PUT /company-profile.
func (h *Handlers) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())

	var req model.UpdateProfileRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	updated, err := h.profileSvc.Update(r.Context(), claims.CompanyID, req)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrNotFound):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "company profile not found")
		case errors.Is(err, profile.ErrInvalid):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		default:
			h.writeInternalError(w, r, "failed to update profile", err)
		}
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleProfileOptions handles GET /company-profile/options.
func (h *Handlers) HandleProfileOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, profile.Options())
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	depth, err := h.db.OutboxDepth(r.Context())
	if err != nil {
		depth = -1
	}

	resp := model.HealthResponse{
		Status:      status,
		Version:     h.version,
		Postgres:    pgStatus,
		OutboxDepth: depth,
		Uptime:      int64(time.Since(h.startedAt).Seconds()),
	}

	if h.searcher != nil {
		if err := h.searcher.Healthy(r.Context()); err == nil {
			resp.Qdrant = "connected"
		} else {
			resp.Qdrant = "disconnected"
			if status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatus, resp)
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// parseRecommendFilters reads the query knobs of GET /recommendations.
// Range validation happens in Normalize.
func parseRecommendFilters(r *http.Request) (model.RecommendFilters, error) {
	q := r.URL.Query()
	var f model.RecommendFilters
	var err error

	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, errors.New("limit must be an integer")
		}
	}
	if v := q.Get("min_score"); v != "" {
		if f.MinScore, err = strconv.ParseFloat(v, 64); err != nil {
			return f, errors.New("min_score must be a number")
		}
	}
	if v := q.Get("days_ahead"); v != "" {
		if f.DaysAhead, err = strconv.Atoi(v); err != nil {
			return f, errors.New("days_ahead must be an integer")
		}
	}
	if vs, ok := q["sectors"]; ok {
		f.Sectors = vs
	}
	if vs, ok := q["regions"]; ok {
		f.Regions = vs
	}
	return f, nil
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
