// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/specialist-referral/app/dto"
	"github.com/amirphl/specialist-referral/app/services"
	"github.com/gofiber/fiber/v3"
)

// Locals keys set by OperatorAuthenticate
const (
	OperatorIDLocal  = "operator_id"
	TokenIDLocal     = "token_id"
	TokenClaimsLocal = "token_claims"
)

// AuthMiddleware handles JWT token validation for the admin API
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// OperatorAuthenticate validates the bearer token and stores the operator in locals
func (m *AuthMiddleware) OperatorAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateOperatorToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}

		c.Locals(OperatorIDLocal, claims.OperatorID)
		c.Locals(TokenIDLocal, claims.TokenID)
		c.Locals(TokenClaimsLocal, claims)

		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// GetOperatorIDFromContext returns the authenticated operator, if any
func GetOperatorIDFromContext(c fiber.Ctx) (uint, bool) {
	operatorID, ok := c.Locals(OperatorIDLocal).(uint)
	return operatorID, ok
}

// GetTokenClaimsFromContext returns the validated token claims, if any
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.OperatorTokenClaims, bool) {
	claims, ok := c.Locals(TokenClaimsLocal).(*services.OperatorTokenClaims)
	return claims, ok
}
