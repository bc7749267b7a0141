// Package handlers holds the HTTP handlers of the commshub API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pysugar/commshub/internal/auth/token"
	"github.com/pysugar/commshub/internal/db"
	"github.com/pysugar/commshub/internal/drive"
	"github.com/pysugar/commshub/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *drive.APIError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, token.ErrInvalidState),
		errors.Is(err, drive.ErrInvalidArgument),
		errors.Is(err, report.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, token.ErrProviderExchange),
		errors.Is(err, token.ErrRefresh),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeResult sends a gateway result with a status matching its error.
func writeResult[T any](w http.ResponseWriter, successStatus int, res drive.Result[T]) {
	if res.Success {
		writeJSON(w, successStatus, res)
		return
	}
	writeJSON(w, statusFor(res.Err), res)
}
