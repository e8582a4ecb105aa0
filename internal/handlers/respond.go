// Package handlers wires the HTTP surface in §6 onto the services in
// internal/services, internal/auth, and internal/realtime.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/jobforge/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps err to its apperr.Kind and writes the matching HTTP
// status, per §7's error handling design.
func writeError(w http.ResponseWriter, logger arbor.ILogger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusCode(kind)

	if status >= 500 {
		logger.Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body: " + err.Error())
	}
	return nil
}
