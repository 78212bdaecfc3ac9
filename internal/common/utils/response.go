// internal/common/utils/response.go
// Standardized API responses ensure consistency across all endpoints

package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// Response is the standard API response structure
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable reason code alongside the message.
type ErrorBody struct {
	Code    apperrors.Code `json:"code"`
	Message string         `json:"message"`
	Meta    interface{}    `json:"meta,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// ErrorResponse sends an error response with a typed code
func ErrorResponse(w http.ResponseWriter, code apperrors.Code, message string, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// ErrorResponseWithMeta sends an error response carrying extra metadata,
// used for rate-limit and quota rejections so clients can back off.
func ErrorResponseWithMeta(w http.ResponseWriter, code apperrors.Code, message string, meta interface{}, statusCode int) {
	RespondWithJSON(w, statusCode, Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Meta: meta},
	})
}

// RespondWithJSON sends a JSON response with the specified status code and payload
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":{"code":"INTERNAL","message":"error marshaling JSON"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithAppError maps an application error to an HTTP response.
// Unexpected errors are logged with a correlation id and reported as a
// generic failure so internals never leak to the caller.
func RespondWithAppError(w http.ResponseWriter, log *zap.SugaredLogger, err error) {
	var ae *apperrors.AppError
	if !errors.As(err, &ae) {
		correlationID := uuid.New().String()
		log.Errorw("unhandled error", "correlation_id", correlationID, "error", err)
		RespondWithJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Error: &ErrorBody{
				Code:    apperrors.CodeInternal,
				Message: "internal error",
				Meta:    map[string]string{"correlation_id": correlationID},
			},
		})
		return
	}

	ErrorResponseWithMeta(w, ae.Code, ae.Message, ae.Meta, StatusForCode(ae.Code))
}

// StatusForCode maps application error codes to HTTP status codes.
func StatusForCode(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidIdentifier,
		apperrors.CodeMalformedConversation,
		apperrors.CodeConversationMismatch,
		apperrors.CodeUnsafeContent,
		apperrors.CodeMessageTooLong,
		apperrors.CodeEmptyAfterSanitize,
		apperrors.CodeInvalidMime,
		apperrors.CodeSignatureMismatch,
		apperrors.CodeInvalidDuration:
		return http.StatusBadRequest
	case apperrors.CodeSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case apperrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.CodeNotMatched, apperrors.CodeBlocked:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeRateLimited, apperrors.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case apperrors.CodeStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
