package ledger

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ehealthwave/platform/pkg/common/logger"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	ledger *Ledger
}

func NewHTTPHandler(ledger *Ledger) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/ledger/verify", h.handleVerify).Methods(http.MethodGet)
	router.HandleFunc("/ledger/entries", h.handleEntries).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ok, err := h.ledger.VerifyIntegrity(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to verify ledger integrity")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"valid": ok})
}

func (h *HTTPHandler) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.Entries(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to read ledger entries")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}
