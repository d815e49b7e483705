package api_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Bezhuang/my-little-app/internal/api"
	"github.com/Bezhuang/my-little-app/internal/api/handlers"
	"github.com/Bezhuang/my-little-app/internal/api/stream"
)

func TestMain(m *testing.M) {
	// AuthMiddleware reads JWT_SECRET; protected routes need it to parse tokens.
	os.Setenv("JWT_SECRET", "test-secret-key-32-chars-min!!!") //nolint:errcheck
	os.Exit(m.Run())
}

// newTestRouter mounts handlers with nil collaborators; only routes rejected
// by middleware may be exercised.
func newTestRouter() http.Handler {
	return api.NewRouter(api.Deps{
		Chat:  handlers.NewChatHandler(nil, stream.Options{}, nil),
		Admin: handlers.NewAdminHandler(nil, nil, nil, nil, nil),
	})
}

func TestNewRouter_HealthEndpoint(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected body to contain 'ok', got %q", w.Body.String())
	}
}

func TestNewRouter_ProtectedRoutesRequireJWT(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/chat"},
		{http.MethodPost, "/api/v1/chat/stream"},
		{http.MethodGet, "/api/v1/quota"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, strings.NewReader(`{}`)))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", rt.method, rt.path, w.Code)
		}
	}
}

func TestNewRouter_AdminRoutesClosedWithoutHash(t *testing.T) {
	t.Parallel()

	router := newTestRouter()
	for _, rt := range []struct{ method, path string }{
		{http.MethodPut, "/api/v1/admin/quota/7"},
		{http.MethodGet, "/api/v1/admin/settings/system_prompt"},
		{http.MethodPut, "/api/v1/admin/settings/system_prompt"},
		{http.MethodGet, "/api/v1/admin/usage"},
		{http.MethodGet, "/api/v1/admin/providers/deepseek/balance"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", rt.method, rt.path, w.Code)
		}
	}
}

func TestNewRouter_UnknownRoute(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
