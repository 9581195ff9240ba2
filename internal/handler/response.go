package handler

// Every error response has the same shape:
//
//	{"error": "validation_error", "message": "email must be a valid email",
//	 "details": {"email": "must be a valid email"}}
//
// so a client can branch on "error" and show "details" next to form fields.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/accountlink/internal/apperror"
	"github.com/sakif/accountlink/internal/validation"
)

// maxBodyBytes caps JSON request bodies. Credential payloads are tiny.
const maxBodyBytes = 64 << 10

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// writeJSON sets the header and status before the body; after the first
// Write, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error onto a status code. Unknown errors become a
// generic 500 so SQL or file paths never reach the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, errorType := statusFor(err)

	details := appErr.Details
	if details == nil && appErr.Field != "" && status == http.StatusBadRequest {
		details = map[string]string{appErr.Field: appErr.Message}
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Details: details,
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrMalformedPayload):
		return http.StatusBadRequest, "malformed_payload"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a JSON body into dst and runs the validate tags on it.
// Keys that dst does not declare are dropped by encoding/json, which is what
// makes the params structs allow-lists.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.Invalid("request body is empty", map[string]string{"payload": "is required"})
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Invalid("request body is too large",
				map[string]string{"payload": fmt.Sprintf("must be at most %d bytes", maxErr.Limit)})
		}
		return apperror.Invalid("request body is not valid JSON", validation.ToDetails(err))
	}

	return validation.Struct(dst)
}
