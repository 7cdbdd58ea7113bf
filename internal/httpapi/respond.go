package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/caremesh/consentd/pkg/logger"
	"github.com/caremesh/consentd/pkg/types"
)

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, log *logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// WriteError maps a service error to its HTTP status and writes the
// standard error envelope.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := http.StatusInternalServerError
	code := types.ErrCodeInternalError
	message := "internal server error"

	var svcErr *types.ServiceError
	if errors.As(err, &svcErr) {
		status = statusFor(svcErr.Type)
		if svcErr.Code == types.ErrCodeUnauthorized {
			status = http.StatusUnauthorized
		}
		code = svcErr.Code
		message = svcErr.Message
	} else {
		log.WithError(err).Error("Unclassified error reached HTTP boundary")
	}

	WriteJSON(w, log, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteBadRequest writes a validation error envelope for malformed input
func WriteBadRequest(w http.ResponseWriter, log *logger.Logger, message string) {
	WriteError(w, log, types.NewValidationError(types.ErrCodeInvalidInput, message, nil))
}

func statusFor(t types.ErrorType) int {
	switch t {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeAuthorization:
		return http.StatusForbidden
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeConflict, types.ErrorTypeInvalidState:
		return http.StatusConflict
	case types.ErrorTypeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
