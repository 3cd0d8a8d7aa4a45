package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/specialist-referral/app/services"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTokenService(t *testing.T, ttl time.Duration) services.TokenService {
	t.Helper()
	svc, err := services.NewTokenService(ttl, "specialist-referral", "specialist-referral-admin", false, "", "", testSecret)
	require.NoError(t, err)
	return svc
}

func newAuthTestApp(svc services.TokenService) *fiber.App {
	app := fiber.New()
	app.Get("/protected", NewAuthMiddleware(svc).OperatorAuthenticate(), func(c fiber.Ctx) error {
		operatorID, ok := GetOperatorIDFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		claims, _ := GetTokenClaimsFromContext(c)
		return c.JSON(fiber.Map{"operator_id": operatorID, "jti": claims.TokenID})
	})
	return app
}

func TestOperatorAuthenticate(t *testing.T) {
	svc := newTokenService(t, time.Hour)
	app := newAuthTestApp(svc)

	valid, err := svc.GenerateOperatorToken(42)
	require.NoError(t, err)

	expired, err := newTokenService(t, -time.Minute).GenerateOperatorToken(42)
	require.NoError(t, err)

	otherAudience, err := services.NewTokenService(time.Hour, "specialist-referral", "someone-else", false, "", "", testSecret)
	require.NoError(t, err)
	foreign, err := otherAudience.GenerateOperatorToken(42)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", fiber.StatusUnauthorized, "MISSING_AUTHORIZATION_HEADER"},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT"},
		{"garbage", "Bearer not-a-jwt", fiber.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "Bearer " + expired, fiber.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"other audience", "Bearer " + foreign, fiber.StatusUnauthorized, "TOKEN_INVALID"},
		{"valid", "Bearer " + valid, fiber.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			if tt.code != "" {
				assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
				return
			}
			assert.EqualValues(t, 42, body["operator_id"])
			assert.NotEmpty(t, body["jti"])
		})
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/items/:id", func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/123", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	counter, err := httpRequestsTotal.GetMetricWithLabelValues(http.MethodGet, "/items/:id", "204")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}
