package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//
//	{"error": "conflict", "message": "user conflict with id ada@example.com"}
//
// "error" is the machine-readable kind from apperror.Kind, so the client
// can turn the body back into a typed error with apperror.FromKind.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/learning-platform/internal/apperror"
	"github.com/sakif/learning-platform/internal/service"
)

// maxBodyBytes caps request bodies; every request here is a small form.
const maxBodyBytes = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`            // Machine-readable error kind
	Message string `json:"message"`          // Human-readable description
	Field   string `json:"field,omitempty"`  // Offending input field, for validation errors
	UserID  string `json:"userId,omitempty"` // Set on partial_failure so the caller can retry
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; the body comes last.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status.
//
//	validation_error      → 400
//	auth_error            → 401
//	forbidden             → 403
//	not_found             → 404
//	conflict              → 409
//	partial_failure       → 500
//	authority_unavailable → 502
//	configuration_error   → 503
var statusFor = map[string]int{
	"validation_error":      http.StatusBadRequest,
	"auth_error":            http.StatusUnauthorized,
	"forbidden":             http.StatusForbidden,
	"not_found":             http.StatusNotFound,
	"conflict":              http.StatusConflict,
	"partial_failure":       http.StatusInternalServerError,
	"authority_unavailable": http.StatusBadGateway,
	"configuration_error":   http.StatusServiceUnavailable,
}

// writeError maps a domain error to its HTTP status and sends it.
//
// Unknown errors become a generic 500; their text may contain SQL or
// file paths and is only logged.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperror.Kind(err)
	status, known := statusFor[kind]
	if !known {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	resp := ErrorResponse{Error: kind, Message: err.Error()}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		if kind == "validation_error" {
			resp.Field = appErr.Field
		}
	}

	var partial *service.PartialSignupError
	if errors.As(err, &partial) {
		resp.Message = partial.Error()
		resp.UserID = partial.Profile.UserID
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so
// typos in field names do not silently drop input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}
