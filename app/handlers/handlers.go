// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/specialist-referral/app/dto"
	"github.com/amirphl/specialist-referral/app/middleware"
	businessflow "github.com/amirphl/specialist-referral/business_flow"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// validationMessages flattens validator errors into readable messages
func validationMessages(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// ErrorResponse writes a failed APIResponse
func ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// SuccessResponse writes a successful APIResponse
func SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// createRequestContext returns a context carrying request-scoped values; callers must call cancel
func createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	if operatorID, ok := middleware.GetOperatorIDFromContext(c); ok {
		ctx = context.WithValue(ctx, utils.OperatorIDKey, operatorID)
	}
	return ctx, cancel
}

// clientMetadata collects the audit fields of the request
func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	meta.SetRequestID(requestid.FromContext(c))
	if operatorID, ok := middleware.GetOperatorIDFromContext(c); ok {
		meta.SetOperatorID(operatorID)
	}
	return meta
}

// businessErrorStatus maps flow errors to an HTTP status and error code
func businessErrorStatus(err error) (int, string) {
	code := "INTERNAL_ERROR"
	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		code = be.Code
	}

	switch {
	case businessflow.IsSpecialistNotFound(err), businessflow.IsStagingNotFound(err):
		return fiber.StatusNotFound, code
	case businessflow.IsClientFieldsRequired(err):
		return fiber.StatusUnprocessableEntity, code
	case businessflow.IsInvalidPeriod(err),
		businessflow.IsNotesTooLong(err),
		businessflow.IsInvalidPage(err),
		businessflow.IsInvalidPageSize(err),
		businessflow.IsInvalidStatus(err),
		businessflow.IsAuditScope(err):
		if code == "INTERNAL_ERROR" {
			code = "VALIDATION_ERROR"
		}
		return fiber.StatusBadRequest, code
	case businessflow.IsSpecialistInactive(err), businessflow.IsInvalidStateTransition(err):
		if code == "INTERNAL_ERROR" {
			code = "CONFLICT"
		}
		return fiber.StatusConflict, code
	case errors.Is(err, businessflow.ErrStagingStoreFailed):
		return fiber.StatusServiceUnavailable, code
	default:
		return fiber.StatusInternalServerError, code
	}
}

// errorMessage prefers the business message over the wrapped error text
func errorMessage(err error, fallback string) string {
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
