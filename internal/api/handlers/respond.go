package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/markdave123-py/spacechat/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: failed to encode response: %v", err)
	}
}

// writeError sends err's user-facing message with its taxonomy status.
// Unclassified errors are logged and reported as internal.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Printf("handlers: %v", err)
	}
	writeJSON(w, status, errorBody{Error: apperr.MessageOf(err), Code: string(apperr.CodeOf(err))})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return apperr.NewInvalidRequest("invalid request body")
	}
	return nil
}

const maxJSONBody = 1 << 20
