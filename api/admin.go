package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

// OutboxAdmin is the operator surface of the outbox dispatcher.
type OutboxAdmin interface {
	Failed(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	Requeue(ctx context.Context, eventID string) (*domain.OutboxEvent, error)
}

type OutboxHandler struct {
	admin OutboxAdmin
}

type outboxEventResponse struct {
	EventID    string `json:"event_id"`
	Topic      string `json:"topic"`
	Key        string `json:"key"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func NewOutboxHandler(admin OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{admin: admin}
}

func (h *OutboxHandler) Register(router *gin.RouterGroup) {
	router.GET("/failed", h.failed)
	router.POST("/:event_id/requeue", h.requeue)
}

func (h *OutboxHandler) failed(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	events, err := h.admin.Failed(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]outboxEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toOutboxEventResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OutboxHandler) requeue(c *gin.Context) {
	event, err := h.admin.Requeue(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOutboxEventResponse(*event))
}

func toOutboxEventResponse(e domain.OutboxEvent) outboxEventResponse {
	return outboxEventResponse{
		EventID:    e.EventID,
		Topic:      e.Topic,
		Key:        e.Key,
		Status:     string(e.Status),
		Attempts:   e.Attempts,
		MaxRetries: e.MaxRetries,
		LastError:  e.LastError,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
