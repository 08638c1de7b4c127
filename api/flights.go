package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/service/flights"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

type flightResponse struct {
	ID            int64  `json:"id"`
	FlightNo      string `json:"flight_no"`
	FromAirport   string `json:"from_airport"`
	ToAirport     string `json:"to_airport"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
	PriceCents    int64  `json:"price_cents"`
	PriceDisplay  string `json:"price_display"`
}

type availabilityResponse struct {
	FlightID  int64 `json:"flight_id"`
	Total     int   `json:"total"`
	Available int   `json:"available"`
	Held      int   `json:"held"`
	Booked    int   `json:"booked"`
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/availability", h.availability)
}

func (h *FlightHandler) list(c *gin.Context) {
	list, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]flightResponse, 0, len(list))
	for _, f := range list {
		resp = append(resp, toFlightResponse(f))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := flightID(c)
	if !ok {
		return
	}
	flight, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toFlightResponse(*flight))
}

func (h *FlightHandler) availability(c *gin.Context) {
	id, ok := flightID(c)
	if !ok {
		return
	}
	a, err := h.service.Availability(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponse{
		FlightID:  a.FlightID,
		Total:     a.Total,
		Available: a.Available,
		Held:      a.Held,
		Booked:    a.Booked,
	})
}

func flightID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func toFlightResponse(f domain.Flight) flightResponse {
	return flightResponse{
		ID:            f.ID,
		FlightNo:      f.FlightNo,
		FromAirport:   f.FromAirport,
		ToAirport:     f.ToAirport,
		DepartureTime: f.DepartureTime.UTC().Format(time.RFC3339),
		ArrivalTime:   f.ArrivalTime.UTC().Format(time.RFC3339),
		PriceCents:    f.PriceCents,
		PriceDisplay:  displayAmount(f.PriceCents),
	}
}
