package api_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/api"
	"github.com/brainskev/houseListing2-sub000/internal/auth"
	"github.com/brainskev/houseListing2-sub000/internal/config"
	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/realtime"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// stubChat answers ListForUser with the caller's id so routing and auth can be checked.
type stubChat struct {
	services.IChatService
	lastSession models.Session
}

func (s *stubChat) ListForUser(_ context.Context, session models.Session) ([]models.ConversationSummary, error) {
	s.lastSession = session
	return []models.ConversationSummary{}, nil
}

// stubUsers serves a fixed staff roster.
type stubUsers struct {
	services.IUserService
	staff []models.User
}

func (s *stubUsers) ListStaff(context.Context) ([]models.User, error) {
	return s.staff, nil
}

const routerSecret = "router-secret"

func testRouter(chat services.IChatService) *gin.Engine {
	return testRouterWithUsers(chat, &stubUsers{})
}

func testRouterWithUsers(chat services.IChatService, users services.IUserService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{JwtSecret: routerSecret, WsAllowedOrigin: "*", ChatPollInterval: 5 * time.Second}
	return api.SetupRouter(cfg, zap.NewNop(), chat, nil, users, realtime.NewHub(zap.NewNop()))
}

func bearer(t *testing.T, role models.Role) string {
	t.Helper()
	token, err := auth.GenerateJWT(utils.NewSixID(), role, routerSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestSetupRouter_Ping(t *testing.T) {
	r := testRouter(&stubChat{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/ping", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestSetupRouter_ChatRoutesRequireAuth(t *testing.T) {
	chat := &stubChat{}
	r := testRouter(chat)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/v1/enquiries"},
		{http.MethodGet, "/v1/conversations"},
		{http.MethodGet, "/v1/inbox"},
		{http.MethodPost, "/v1/conversations/0123456789/read"},
		{http.MethodGet, "/v1/ws"},
	} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(route.method, route.path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}

	userID := utils.NewSixID()
	token, err := auth.GenerateJWT(userID, models.RoleAssistant, routerSecret, time.Hour)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Session{UserID: userID, Role: models.RoleAssistant}, chat.lastSession)
}

func TestSetupRouter_StaffRosterIsStaffOnly(t *testing.T) {
	users := &stubUsers{staff: []models.User{{Base: models.NewBase(), Name: "Ada", Role: models.RoleAdmin}}}
	r := testRouterWithUsers(&stubChat{}, users)

	for _, tc := range []struct {
		name   string
		auth   string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regular user", bearer(t, models.RoleUser), http.StatusForbidden},
		{"agent", bearer(t, models.RoleAgent), http.StatusForbidden},
		{"assistant", bearer(t, models.RoleAssistant), http.StatusOK},
		{"admin", bearer(t, models.RoleAdmin), http.StatusOK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/v1/staff", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"name":"Ada"`)
			}
		})
	}
}

func servicePost(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSetupServiceRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	shutdown := make(chan struct{}, 1)
	r := api.SetupServiceRouter(zap.NewNop(), nil, shutdown)

	w := servicePost(r, `{"method":"shutdown"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	select {
	case <-shutdown:
	default:
		t.Fatal("shutdown was not signaled")
	}
	// A second request must not block when nobody drains the channel.
	shutdown <- struct{}{}
	assert.Equal(t, http.StatusOK, servicePost(r, `{"method":"shutdown"}`).Code)

	assert.Equal(t, http.StatusNotFound, servicePost(r, `{"method":"explode"}`).Code)
	assert.Equal(t, http.StatusBadRequest, servicePost(r, `not json`).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		servicePost(r, `{"method":"getTestEmail","arguments":["new_enquiry","a@example.com"]}`).Code)
}
