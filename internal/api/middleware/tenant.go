package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// WorkspaceKey is the context key for the workspace id.
const WorkspaceKey contextKey = "workspace"

// DefaultWorkspace is used when a request names no workspace.
const DefaultWorkspace = "default"

// Workspace extracts the workspace from the request. It checks the
// X-Workspace header, then the workspace query parameter, and falls back
// to "default".
func Workspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := strings.TrimSpace(r.Header.Get("X-Workspace"))
		if ws == "" {
			ws = strings.TrimSpace(r.URL.Query().Get("workspace"))
		}
		if ws == "" {
			ws = DefaultWorkspace
		}
		next.ServeHTTP(w, r.WithContext(WithWorkspace(r.Context(), ws)))
	})
}

// WithWorkspace returns ctx carrying ws.
func WithWorkspace(ctx context.Context, ws string) context.Context {
	return context.WithValue(ctx, WorkspaceKey, ws)
}

// GetWorkspace retrieves the workspace id from the request context.
func GetWorkspace(ctx context.Context) string {
	if v, ok := ctx.Value(WorkspaceKey).(string); ok && v != "" {
		return v
	}
	return DefaultWorkspace
}
