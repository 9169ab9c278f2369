package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocanvas/protocanvas/internal/config"
	"github.com/protocanvas/protocanvas/pkg/server"
)

func newServer(t *testing.T, mutate func(*config.Config)) *server.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DataDir = ""
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := server.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close(context.Background()) })
	return srv
}

func TestNewWithConfig_Health(t *testing.T) {
	srv := newServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func postChat(t *testing.T, srv *server.Server, body string) (response string, fallback bool) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Response string `json:"response"`
			Fallback bool   `json:"fallback"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data.Response, resp.Data.Fallback
}

func TestNewWithConfig_NoKeysChatFallsBack(t *testing.T) {
	srv := newServer(t, nil)
	assert.Equal(t, "openai", srv.Providers.Default().Name())

	response, fallback := postChat(t, srv, `{"messages":[{"role":"user","content":"hello there"}]}`)
	assert.True(t, fallback)
	assert.Contains(t, response, "hello there")
}

func TestNewWithConfig_EchoChatEndToEnd(t *testing.T) {
	srv := newServer(t, func(c *config.Config) { c.Providers.Default = "echo" })
	assert.Equal(t, "echo", srv.Providers.Default().Name())

	response, fallback := postChat(t, srv, `{"systemPrompt":"s","messages":[{"role":"user","content":"hi"}]}`)
	assert.False(t, fallback)
	assert.Equal(t, "Echo: hi", response)
}

func TestNewWithConfig_SQLiteStore(t *testing.T) {
	dsn := t.TempDir() + "/pc.db"
	srv := newServer(t, func(c *config.Config) {
		c.Store.Driver = "sqlite"
		c.Store.DSN = dsn
		c.History.Persist = true
	})

	doc, err := srv.Documents.Get(context.Background(), "w")
	require.NoError(t, err)
	assert.Empty(t, doc.Components)
}

func TestNewWithConfig_APIKeys(t *testing.T) {
	srv := newServer(t, func(c *config.Config) { c.Auth.APIKeys = []string{"secret"} })

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/document", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/document", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := server.OpenStore(context.Background(), config.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
