package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"examintel/internal/auth"
)

func newTestRouter() http.Handler {
	cfg := defaultConfig()
	cfg.RateLimitPerMin = 1000
	return NewRouter(cfg, nil, nil, nil)
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminRoutesRequireGatewayUser(t *testing.T) {
	h := newTestRouter()
	for _, path := range []string{
		"/api/v1/admin/lessons",
		"/api/v1/admin/ontology/unresolved-topics",
		"/api/v1/admin/intelligence-report",
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestSeedRequiresAdminRole(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/taxonomy/seed", strings.NewReader("lessons: []"))
	req.Header.Set(auth.HeaderAdminUserID, "7")
	req.Header.Set(auth.HeaderAdminRole, auth.RoleCurator)
	w := httptest.NewRecorder()

	newTestRouter().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestMetricsCountsRequests(t *testing.T) {
	h := newTestRouter()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `path="/healthz",status="200"`) {
		t.Fatalf("expected healthz counter, got:\n%s", w.Body.String())
	}
}
