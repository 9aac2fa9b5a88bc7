package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chereta-io/chereta/internal/auth"
	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/ratelimit"
)

// newTestServer builds a server with an ephemeral key pair and no storage
// backends. Only routes that never touch the database are exercised here;
// storage-backed flows are covered by the service and storage tests.
func newTestServer(t *testing.T, limiter ratelimit.Limiter) (*Server, *auth.JWTManager) {
	t.Helper()
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	srv := New(Config{
		JWTMgr:              mgr,
		Logger:              slog.Default(),
		Limiter:             limiter,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	return srv, mgr
}

func bearerToken(t *testing.T, mgr *auth.JWTManager) string {
	t.Helper()
	token, _, err := mgr.IssueToken(uuid.New(), uuid.New(), "buyer@example.com")
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeUnauthorized, resp.Error.Code)
	assert.NotEmpty(t, resp.Meta.RequestID)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileOptions(t *testing.T) {
	srv, mgr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	req.Header.Set("Authorization", bearerToken(t, mgr))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data model.ProfileOptions `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.Sectors)
	assert.NotEmpty(t, resp.Data.Regions)
	assert.Len(t, resp.Data.CompanySizes, 4)
}

func TestRequestIDHeader(t *testing.T) {
	srv, mgr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	req.Header.Set("Authorization", bearerToken(t, mgr))
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-ID"))

	// Absent header gets a generated one.
	req2 := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	req2.Header.Set("Authorization", bearerToken(t, mgr))
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	assert.NotEmpty(t, rec2.Header().Get("X-Request-ID"))
}

func TestSecurityHeaders(t *testing.T) {
	srv, mgr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	req.Header.Set("Authorization", bearerToken(t, mgr))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRateLimit_TooManyRequests(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(0.001, 1)
	defer func() { _ = limiter.Close() }()

	srv, mgr := newTestServer(t, limiter)
	token := bearerToken(t, mgr)

	first := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	first.Header.Set("Authorization", token)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/company-profile/options", nil)
	second.Header.Set("Authorization", token)
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, second)

	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeRateLimited, resp.Error.Code)
}

func TestRefreshEmbedding_NotConfigured(t *testing.T) {
	// No reembedder wired; the endpoint reports unavailability instead of
	// panicking into a 500.
	srv, mgr := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/recommendations/refresh-profile-embedding", nil)
	req.Header.Set("Authorization", bearerToken(t, mgr))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeUnavailable, resp.Error.Code)
}

func TestParseRecommendFilters(t *testing.T) {
	mkReq := func(rawQuery string) *http.Request {
		return &http.Request{URL: &url.URL{RawQuery: rawQuery}}
	}

	f, err := parseRecommendFilters(mkReq("limit=50&min_score=60&days_ahead=30&sectors=IT&sectors=Construction&regions=Addis+Ababa"))
	require.NoError(t, err)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 60.0, f.MinScore)
	assert.Equal(t, 30, f.DaysAhead)
	assert.Equal(t, []string{"IT", "Construction"}, f.Sectors)
	assert.Equal(t, []string{"Addis Ababa"}, f.Regions)

	_, err = parseRecommendFilters(mkReq("limit=abc"))
	assert.Error(t, err)

	_, err = parseRecommendFilters(mkReq("min_score=high"))
	assert.Error(t, err)

	f, err = parseRecommendFilters(mkReq(""))
	require.NoError(t, err)
	assert.Zero(t, f.Limit, "defaults are applied later by Normalize")
}
