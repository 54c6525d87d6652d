package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pairline/internal/core/domain"
	"pairline/internal/core/services"
	"pairline/internal/infrastructure/middleware"
	"pairline/internal/infrastructure/monitoring"
	"pairline/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubStats struct {
	states map[domain.UserID]domain.UserState
}

func (s *stubStats) QueueStats() domain.QueueStats {
	return domain.QueueStats{Waiting: 2, Male: 1, Female: 1}
}
func (s *stubStats) ActiveSessionCount() int { return 3 }
func (s *stubStats) ConnectedCount() int     { return 8 }
func (s *stubStats) UserState(id domain.UserID) domain.UserState {
	if st, ok := s.states[id]; ok {
		return st
	}
	return domain.StateIdle
}
func (s *stubStats) CurrentTier(id domain.UserID) (domain.QualityTier, bool) {
	if s.states[id] != domain.StateInSession {
		return domain.QualityTier{}, false
	}
	tier, _ := domain.DefaultCatalog().Lookup("480p")
	return tier, true
}

type testEnv struct {
	router  *gin.Engine
	auth    services.AuthService
	reports *memory.MemoryReportRepository
	stats   *stubStats
}

func newTestEnv(t *testing.T, guestEnabled bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	auth := services.NewAuthService("test-secret", 15*time.Minute, time.Hour, nil, nil, logger)
	reports := memory.NewMemoryReportRepository().(*memory.MemoryReportRepository)
	stats := &stubStats{states: map[domain.UserID]domain.UserState{}}

	checker := monitoring.NewHealthChecker()
	checker.AddCheck("always", func(ctx context.Context) error { return nil }, 0, time.Second)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	NewHealthHandler(checker).RegisterRoutes(&router.RouterGroup)
	api := router.Group("/api/v1")
	NewAuthHandler(auth, guestEnabled, logger).RegisterRoutes(api)
	NewStatsHandler(stats, services.NewMetricsService(), reports, auth).RegisterRoutes(api)

	return &testEnv{router: router, auth: auth, reports: reports, stats: stats}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) token(t *testing.T, id domain.UserID, role domain.UserRole) string {
	t.Helper()
	pair, err := e.auth.IssueTokens(&domain.Identity{
		UserID:      id,
		DisplayName: "Test",
		Attributes:  domain.AccountAttributes{AccountType: domain.AccountFree, Role: role},
	})
	require.NoError(t, err)
	return pair.AccessToken
}

func TestAuthHandler_Guest(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(http.MethodPost, "/api/v1/auth/guest", "", GuestRequest{DisplayName: " Riley ", Gender: "female"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Riley", resp.DisplayName)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	identity, err := env.auth.ResolveIdentity(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, identity.UserID)
	assert.Equal(t, domain.GenderFemale, identity.Attributes.Gender)
}

func TestAuthHandler_GuestValidation(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing name", map[string]string{"gender": "male"}},
		{"bad name", GuestRequest{DisplayName: "<script>"}},
		{"bad gender", GuestRequest{DisplayName: "Riley", Gender: "robot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/auth/guest", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_INPUT")
		})
	}
}

func TestAuthHandler_GuestDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.do(http.MethodPost, "/api/v1/auth/guest", "", GuestRequest{DisplayName: "Riley"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthHandler_Refresh(t *testing.T) {
	env := newTestEnv(t, true)
	pair, _, err := env.auth.IssueGuest("Riley", domain.GenderUnspecified)
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)

	w = env.do(http.MethodPost, "/api/v1/auth/refresh", "", RefreshTokenRequest{RefreshToken: pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")

	w = env.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsHandler_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t, true)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/stats", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/stats", env.token(t, "u1", domain.RoleUser), nil).Code)

	w := env.do(http.MethodGet, "/api/v1/stats", env.token(t, "root", domain.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Queue.Waiting)
	assert.Equal(t, 3, resp.ActiveSessions)
	assert.Equal(t, 8, resp.ConnectedUsers)
	require.NotNil(t, resp.Metrics)
}

func TestStatsHandler_Me(t *testing.T) {
	env := newTestEnv(t, true)
	env.stats.states["u1"] = domain.StateInSession

	w := env.do(http.MethodGet, "/api/v1/me", env.token(t, "u1", domain.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"in_session"`)
	assert.Contains(t, w.Body.String(), `"label":"480p"`)

	w = env.do(http.MethodGet, "/api/v1/me", env.token(t, "u2", domain.RoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
	assert.NotContains(t, w.Body.String(), "quality")
}

func TestStatsHandler_ListReports(t *testing.T) {
	env := newTestEnv(t, true)
	admin := env.token(t, "root", domain.RoleAdmin)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.reports.Save(context.Background(), &domain.Report{
			ID:         string(rune('a' + i)),
			ReportedID: "bad",
			ReporterID: "victim",
			Reason:     "spam",
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	w := env.do(http.MethodGet, "/api/v1/users/bad/reports?limit=2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Total   int64            `json:"total"`
		Reports []*domain.Report `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Len(t, resp.Reports, 2)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/users/bad/reports?limit=0", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/users/b%20d/reports", admin, nil).Code)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, true)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/ready", "", nil).Code)

	checker := monitoring.NewHealthChecker()
	checker.AddCheck("redis", func(ctx context.Context) error { return errors.New("down") }, 0, time.Second)
	router := gin.New()
	NewHealthHandler(checker).RegisterRoutes(&router.RouterGroup)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")
}
