package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/protocanvas/protocanvas/internal/api/middleware"
)

func TestWorkspace(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"default", "", "", "default"},
		{"header", "alpha", "beta", "alpha"},
		{"query", "", "beta", "beta"},
		{"blank header", "  ", "", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := middleware.Workspace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = middleware.GetWorkspace(r.Context())
			}))
			url := "/api/document"
			if tt.query != "" {
				url += "?workspace=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-Workspace", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("workspace = %q, want %q", got, tt.want)
			}
		})
	}
}
