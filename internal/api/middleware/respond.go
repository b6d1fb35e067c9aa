package middleware

import (
	"encoding/json"
	"net/http"
)

// respondError writes the error body every API endpoint uses
func respondError(w http.ResponseWriter, message, kind string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
		"kind":    kind,
	})
}
