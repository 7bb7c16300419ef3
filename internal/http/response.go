package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes a JSON response to the client
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "status", statusCode, "error", err)
	}
}
