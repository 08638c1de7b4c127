package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/flightbooking/internal/service/booking"
)

type PaymentHandler struct {
	service booking.BookingUseCase
}

type paymentRequest struct {
	PaymentID     string `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
}

type paymentResponse struct {
	TicketID           int64    `json:"ticket_id"`
	TicketReference    string   `json:"ticket_reference"`
	Status             string   `json:"status"`
	CancelReason       string   `json:"cancel_reason,omitempty"`
	FlightNumber       string   `json:"flight_number"`
	SeatNumbers        []string `json:"seat_numbers"`
	TotalAmount        int64    `json:"total_amount"`
	TotalAmountDisplay string   `json:"total_amount_display"`
}

func NewPaymentHandler(service booking.BookingUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.report)
}

func (h *PaymentHandler) report(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.service.ReportPayment(c.Request.Context(), booking.PaymentSignal{
		PaymentRef: req.PaymentID,
		Outcome:    booking.Outcome(strings.ToUpper(strings.TrimSpace(req.PaymentStatus))),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{
		TicketID:           res.TicketID,
		TicketReference:    res.Reference,
		Status:             string(res.Status),
		CancelReason:       string(res.CancelReason),
		FlightNumber:       res.FlightNumber,
		SeatNumbers:        res.SeatNumbers,
		TotalAmount:        res.TotalAmount,
		TotalAmountDisplay: displayAmount(res.TotalAmount),
	})
}
