package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gainsborouo/ta-source/internal/common"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error to an HTTP status and a client-safe
// message. notFound replaces the generic message for common.ErrorNotFound.
func statusFor(err error, notFound string) (int, string) {
	var pe *common.ProviderError

	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid username or password"
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Token has expired"
	case errors.Is(err, common.ErrTokenMalformed):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, common.ErrCSRFMismatch):
		return http.StatusBadRequest, "Invalid state parameter"
	case errors.Is(err, common.ErrProviderProfileIncomplete):
		return http.StatusBadRequest, "Incomplete user information"
	case errors.As(err, &pe):
		if pe.Op == common.OpProfile {
			return http.StatusBadRequest, "Failed to fetch user information"
		}
		if pe.Status >= 400 && pe.Status < 600 {
			return pe.Status, "Failed to obtain access token"
		}
		return http.StatusBadRequest, "Failed to obtain access token"
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden, "Not allowed to access this file"
	case errors.Is(err, common.ErrInvalidPath):
		return http.StatusBadRequest, "Invalid file path"
	case errors.Is(err, common.ErrUnknownProvider):
		return http.StatusNotFound, "Unknown identity provider"
	case errors.Is(err, common.ErrorNotFound):
		if notFound == "" {
			notFound = "Not found"
		}
		return http.StatusNotFound, notFound
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error, notFound string) {
	status, msg := statusFor(err, notFound)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{Detail: msg})
}
