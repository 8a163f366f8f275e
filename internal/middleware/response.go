package middleware

import (
	"net/http"

	apperrors "github.com/podpairer/server/internal/errors"
	"github.com/podpairer/server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	code := apperrors.ErrCodeInternal
	switch status {
	case http.StatusUnauthorized:
		code = apperrors.ErrCodeUnauthorized
	case http.StatusNotFound:
		code = apperrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		code = apperrors.ErrCodeRateLimitExceeded
	case http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		code = apperrors.ErrCodeInvalidInput
	}
	writeJSON(w, status, httputil.ErrorResponse{Success: false, Error: message, Code: code})
}
