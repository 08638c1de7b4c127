package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// HoldLister lists the leases currently outstanding on a flight.
type HoldLister interface {
	ActiveForFlight(ctx context.Context, flightID int64) ([]domain.Hold, error)
}

type HoldHandler struct {
	holds HoldLister
}

type holdResponse struct {
	SeatNo    string `json:"seat_no"`
	ExpiresAt string `json:"expires_at"`
}

func NewHoldHandler(holds HoldLister) *HoldHandler {
	return &HoldHandler{holds: holds}
}

// Register mounts the handler on the flights group.
func (h *HoldHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id/holds", h.list)
}

func (h *HoldHandler) list(c *gin.Context) {
	id, ok := flightID(c)
	if !ok {
		return
	}
	holds, err := h.holds.ActiveForFlight(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]holdResponse, 0, len(holds))
	for _, hold := range holds {
		resp = append(resp, holdResponse{
			SeatNo:    hold.SeatNo,
			ExpiresAt: hold.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}
