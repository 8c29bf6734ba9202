package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"macrolog/oauth"
)

const maxBodyBytes = 1 << 20

// ServeHTTP accepts POST requests on the proxy routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, oauth.ErrorBody{Error: "Method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, oauth.ErrorBody{Error: msgInvalidJSON})
		return
	}

	status, payload := h.Handle(r.Context(), r.URL.Path, body)
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("API: failed to write response", "error", err)
	}
}
