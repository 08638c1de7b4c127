package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingRequest struct {
	FlightIDs []int64 `json:"flight_ids"`
	SeatCount int     `json:"seat_count"`
}

type bookingResponse struct {
	SessionID          string        `json:"session_id"`
	PaymentID          string        `json:"payment_id"`
	ExpiresAt          string        `json:"expires_at"`
	TotalAmount        int64         `json:"total_amount"`
	TotalAmountDisplay string        `json:"total_amount_display"`
	SeatNumbers        []string      `json:"seat_numbers"`
	Legs               []booking.Leg `json:"legs"`
	State              string        `json:"state"`
}

type bookingViewResponse struct {
	TicketID           int64    `json:"ticket_id"`
	TicketReference    string   `json:"ticket_reference"`
	PaymentID          string   `json:"payment_id"`
	SessionID          string   `json:"session_id"`
	Status             string   `json:"status"`
	CancelReason       string   `json:"cancel_reason,omitempty"`
	SeatNumbers        []string `json:"seat_numbers"`
	TotalAmount        int64    `json:"total_amount"`
	TotalAmountDisplay string   `json:"total_amount_display"`
	HoldsExpireAt      string   `json:"holds_expire_at,omitempty"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:payment_id", h.get)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.service.RequestBooking(c.Request.Context(), booking.Request{
		FlightIDs: req.FlightIDs,
		SeatCount: req.SeatCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bookingResponse{
		SessionID:          res.SessionID,
		PaymentID:          res.PaymentRef,
		ExpiresAt:          res.ExpiresAt.UTC().Format(time.RFC3339),
		TotalAmount:        res.TotalAmount,
		TotalAmountDisplay: displayAmount(res.TotalAmount),
		SeatNumbers:        res.SeatNumbers,
		Legs:               res.Legs,
		State:              string(res.State),
	})
}

func (h *BookingHandler) get(c *gin.Context) {
	view, err := h.service.GetBooking(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toViewResponse(view))
}

func toViewResponse(v *booking.View) bookingViewResponse {
	t := v.Ticket
	resp := bookingViewResponse{
		TicketID:           t.ID,
		TicketReference:    t.Reference(),
		PaymentID:          t.PaymentRef,
		SessionID:          t.SessionID,
		Status:             string(t.Status),
		SeatNumbers:        v.SeatNumbers,
		TotalAmount:        t.TotalAmount,
		TotalAmountDisplay: displayAmount(t.TotalAmount),
	}
	if t.CancelReason != domain.CancelReasonNone {
		resp.CancelReason = string(t.CancelReason)
	}
	if v.HoldsExpireAt != nil {
		resp.HoldsExpireAt = v.HoldsExpireAt.UTC().Format(time.RFC3339)
	}
	return resp
}
