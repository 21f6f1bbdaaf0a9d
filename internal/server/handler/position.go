package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// PositionService defines the methods the position handler requires from the
// service layer.
type PositionService interface {
	Position(ctx context.Context, marketID uint64, addr string) (domain.Position, error)
}

// PositionHandler serves position lookup endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// GetPosition returns an address's LP and outcome share balances in a market.
// Addresses that never interacted with the market get a zero position.
// GET /api/markets/{id}/positions/{address}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	addr := pathParam(r, "address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	pos, err := h.positions.Position(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get position")
		return
	}

	writeJSON(w, http.StatusOK, newPositionView(pos))
}
