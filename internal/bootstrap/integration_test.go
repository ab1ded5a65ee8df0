//go:build integration

package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loop/internal/auth"
	"loop/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need the Postgres and Redis described by the environment
// (DB_HOST, REDIS_URL and friends). Run with: go test -tags integration ./...

func newIntegrationRuntime(t *testing.T) (*Runtime, *fiber.App) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DISPATCH_WORKERS", "2")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	rt, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	rt.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, rt.Shutdown(ctx))
	})
	return rt, rt.Server.App()
}

func signIn(t *testing.T, cfg *config.Config) string {
	t.Helper()
	id := uuid.New()
	token, err := auth.SignToken(cfg.SupabaseJWTSecret, id, "it_"+id.String()[:8]+"@example.com", time.Hour)
	require.NoError(t, err)
	return token
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestLoopBranchLikeNotificationFlow(t *testing.T) {
	rt, app := newIntegrationRuntime(t)
	author := signIn(t, rt.Config)
	fan := signIn(t, rt.Config)

	status, root := call(t, app, http.MethodPost, "/api/loops", author, map[string]any{
		"content": map[string]any{"type": "text", "text": "integration root"},
	})
	require.Equal(t, http.StatusCreated, status)
	rootID := root["id"].(string)

	status, _ = call(t, app, http.MethodPost, "/api/loops/branch", fan, map[string]any{
		"parent_id": rootID,
		"content":   map[string]any{"type": "text", "text": "integration branch"},
	})
	require.Equal(t, http.StatusCreated, status)

	status, liked := call(t, app, http.MethodPost, "/api/loops/"+rootID+"/interactions", fan, map[string]any{"type": "like"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "added", liked["action"])

	status, view := call(t, app, http.MethodGet, "/api/loops/"+rootID, author, nil)
	require.Equal(t, http.StatusOK, status)
	stats := view["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["branches"])
	assert.EqualValues(t, 1, stats["likes"])

	// Notifications arrive through the dispatcher, not the request.
	require.Eventually(t, func() bool {
		status, body := call(t, app, http.MethodGet, "/api/notifications/unread-count", author, nil)
		n, ok := body["count"].(float64)
		return status == http.StatusOK && ok && n >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestReadinessAgainstRealStores(t *testing.T) {
	_, app := newIntegrationRuntime(t)
	status, body := call(t, app, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}
