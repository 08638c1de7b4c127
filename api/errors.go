package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type errorResponse struct {
	Error           string `json:"error"`
	SessionID       string `json:"session_id,omitempty"`
	RefundRequested bool   `json:"refund_requested,omitempty"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrNoActiveHolds),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}

	var alloc *domain.AllocationError
	if errors.As(err, &alloc) {
		resp.SessionID = alloc.SessionID
	}
	var noHolds *domain.NoActiveHoldsError
	if errors.As(err, &noHolds) {
		resp.RefundRequested = true
	}

	status := statusOf(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

// displayAmount renders minor units as a two-decimal string.
func displayAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
