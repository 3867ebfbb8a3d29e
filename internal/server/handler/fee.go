package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// FeeService is what the fee endpoints need from the service layer.
type FeeService interface {
	List(ctx context.Context) ([]domain.Fee, error)
	Upsert(ctx context.Context, fee domain.Fee) (domain.Fee, error)
}

// FeeHandler serves the fee endpoints.
type FeeHandler struct {
	fees   FeeService
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(fees FeeService, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{fees: fees, logger: logger.With(slog.String("handler", "fees"))}
}

// List returns every configured fee.
// GET /api/fees
func (h *FeeHandler) List(w http.ResponseWriter, r *http.Request) {
	fees, err := h.fees.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list fees", err)
		return
	}
	if fees == nil {
		fees = []domain.Fee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": fees})
}

// Upsert creates or replaces the fee of a provider service. Running
// instances pick the change up from the bus.
// PUT /api/fees
func (h *FeeHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var fee domain.Fee
	if err := json.NewDecoder(r.Body).Decode(&fee); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	stored, err := h.fees.Upsert(r.Context(), fee)
	if err != nil {
		writeServiceError(w, r, h.logger, "upsert fee", err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
