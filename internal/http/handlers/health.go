package handlers

import "net/http"

// Health reports liveness plus which optional components are enabled.
func Health(components map[string]bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"components": components,
		})
	}
}
