package analytics

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Handler serves the read API:
//
//	GET /analytics            -> list of instruments with snapshots
//	GET /analytics/{symbol}   -> full snapshot, 404 when absent
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := strings.Trim(strings.TrimPrefix(r.URL.Path, "/analytics"), "/")
	w.Header().Set("Content-Type", "application/json")

	if symbol == "" {
		json.NewEncoder(w).Encode(struct {
			Instruments []string `json:"instruments"`
		}{h.registry.Instruments()})
		return
	}

	snap, ok := h.registry.Get(strings.ToUpper(symbol))
	if !ok {
		http.Error(w, `{"error":"no snapshot for instrument"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(snap)
}
