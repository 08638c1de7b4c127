package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/flightbooking/internal/domain"
)

type MockHoldLister struct {
	mock.Mock
}

func (m *MockHoldLister) ActiveForFlight(ctx context.Context, flightID int64) ([]domain.Hold, error) {
	args := m.Called(ctx, flightID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Hold), args.Error(1)
}

func TestHoldHandler_list(t *testing.T) {
	lister := &MockHoldLister{}
	handler := NewHoldHandler(lister)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/v1/flights/3/holds", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	expires := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	lister.On("ActiveForFlight", mock.Anything, int64(3)).
		Return([]domain.Hold{{FlightID: 3, SeatNo: "01A", SessionID: "sess_1_abcdef01", ExpiresAt: expires}}, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []holdResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []holdResponse{{SeatNo: "01A", ExpiresAt: "2026-03-01T12:15:00Z"}}, response)
	assert.NotContains(t, w.Body.String(), "sess_1_abcdef01")
	lister.AssertExpectations(t)
}

func TestHoldHandler_listInvalidID(t *testing.T) {
	handler := NewHoldHandler(&MockHoldLister{})

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/v1/flights/x/holds", nil)
	c.Params = gin.Params{{Key: "id", Value: "x"}}

	handler.list(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHoldHandler_listStoreError(t *testing.T) {
	lister := &MockHoldLister{}
	handler := NewHoldHandler(lister)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/v1/flights/3/holds", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}

	lister.On("ActiveForFlight", mock.Anything, int64(3)).Return(nil, errors.New("db down"))

	handler.list(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
