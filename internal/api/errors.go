package api

import (
	"encoding/json"
	"net/http"
)

// Error kinds reported to clients.
const (
	errKindValidation = "VALIDATION"
	errKindNotFound   = "NOT_FOUND"
	errKindAuth       = "UNAUTHORIZED"
	errKindConflict   = "CONFLICT"
	errKindInternal   = "INTERNAL"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
