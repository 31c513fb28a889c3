package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireGatewayUser(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		role     string
		wantCode int
		wantRole string
	}{
		{name: "missing header", id: "", wantCode: http.StatusUnauthorized},
		{name: "non numeric", id: "abc", wantCode: http.StatusUnauthorized},
		{name: "zero id", id: "0", wantCode: http.StatusUnauthorized},
		{name: "default role", id: "42", wantCode: http.StatusOK, wantRole: RoleAdmin},
		{name: "explicit role", id: "42", role: " Curator ", wantCode: http.StatusOK, wantRole: RoleCurator},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got *User
			h := RequireGatewayUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = CurrentUser(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/ontology/unresolved-topics", nil)
			if tc.id != "" {
				req.Header.Set(HeaderAdminUserID, tc.id)
			}
			if tc.role != "" {
				req.Header.Set(HeaderAdminRole, tc.role)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, w.Code)
			}
			if tc.wantCode != http.StatusOK {
				return
			}
			if got == nil || got.ID != 42 || got.Role != tc.wantRole {
				t.Fatalf("unexpected user in context: %+v", got)
			}
		})
	}
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	h := RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/ontology/resolve-topic", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 3, Role: RoleCurator}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/ontology/resolve-topic", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", w.Code)
	}
}
