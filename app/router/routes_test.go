package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/specialist-referral/app/handlers"
	"github.com/amirphl/specialist-referral/app/middleware"
	"github.com/amirphl/specialist-referral/app/services"
	"github.com/amirphl/specialist-referral/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (*fiber.App, services.TokenService) {
	t.Helper()

	cfg := &config.ProductionConfig{
		Server:     config.ServerConfig{ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Deployment: config.DeploymentConfig{Version: "test"},
	}
	tokens, err := services.NewTokenService(time.Hour, "specialist-referral", "specialist-referral-admin", false, "", "", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	// flows are never reached by these requests
	h := handlers.NewReferralAdminHandler(nil, nil, time.Second, zap.NewNop())
	r := NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokens), checks, zap.NewNop())
	r.SetupRoutes()
	return r.GetApp(), tokens
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app, _ := newTestRouter(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

		body := decode(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "ok", data["status"])
		assert.Equal(t, "test", data["version"])
	})

	t.Run("degraded", func(t *testing.T) {
		app, _ := newTestRouter(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		data := decode(t, resp)["data"].(map[string]any)
		checks := data["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"])
		assert.Equal(t, "connection refused", checks["redis"])
	})
}

func TestAdminRoutesRequireOperatorToken(t *testing.T) {
	app, tokens := newTestRouter(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/admin/referrals/12/2025/3", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// a bad path parameter is rejected by the handler before any flow is called
	token, err := tokens.GenerateOperatorToken(1)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/referrals/12/2025/march", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotFoundAndMetrics(t *testing.T) {
	app, _ := newTestRouter(t, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, resp)["error"].(map[string]any)["code"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "referral_http_requests_total")
}
