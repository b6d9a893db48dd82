// Package httputil centralizes JSON encoding and domain error translation for
// HTTP handlers so every endpoint returns the same envelopes.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "custos/pkg/domain-errors"
)

// maxBodyBytes caps request bodies; none of the engine's requests are large.
const maxBodyBytes = 1 << 20

// WriteJSON encodes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire envelope for failed requests. Violations is only
// populated for transfer_failed responses, where the caller needs every
// business-rule failure in one payload.
type errorBody struct {
	Error            string   `json:"error"`
	ErrorDescription string   `json:"error_description,omitempty"`
	Violations       []string `json:"violations,omitempty"`
}

// WriteError translates a domain error into an HTTP response. Internal errors
// omit the description so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := ""
	var violations []string

	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
		violations = de.Violations
	}
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation {
		message = ""
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), errorBody{
		Error:            string(code),
		ErrorDescription: message,
		Violations:       violations,
	})
}

// DecodeAndPrepare decodes a JSON request body into T and writes a bad-request
// response on failure. The bool result tells the handler whether to continue.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request decode failed",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return req, false
	}
	return req, true
}
