// Package shared centralizes domain error translation and JSON encoding for
// HTTP handlers so every feature returns the same envelopes.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "cadastra/pkg/domain-errors"
)

// WriteError maps a domain error onto an HTTP status with a consistent JSON
// envelope. Non-coded errors become 500s without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := "internal error"

	var de *dErrors.Error
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":       string(code),
		"description": message,
	})
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
