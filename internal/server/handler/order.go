package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

// OrderLister lists the orders an instance sent.
type OrderLister interface {
	ListByInstance(ctx context.Context, instanceID int64, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderLister
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given store and logger.
func NewOrderHandler(orders OrderLister, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger.With(slog.String("handler", "orders")),
	}
}

// ListOrders returns the orders of an instance, newest first.
// GET /api/orders?instance_id=3&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("instance_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "instance_id query parameter required")
		return
	}

	orders, err := h.orders.ListByInstance(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
