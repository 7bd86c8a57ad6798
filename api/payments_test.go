package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rentora/rentora/internal/service/payments"
)

type MockPaymentProcessor struct {
	mock.Mock
}

func (m *MockPaymentProcessor) Handle(ctx context.Context, ev payments.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func TestPaymentHandler_webhook(t *testing.T) {
	processor := &MockPaymentProcessor{}
	handler := NewPaymentHandler(processor)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ev := payments.Event{
		Type:        payments.EventCompleted,
		BookingID:   "b-1",
		PaymentRef:  "pay-1",
		AmountCents: 30000,
	}
	body, _ := json.Marshal(ev)
	c.Request = httptest.NewRequest("POST", "/payments/webhook", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	processor.On("Handle", c.Request.Context(), ev).Return(nil)

	handler.webhook(c)

	assert.Equal(t, http.StatusOK, w.Code)
	processor.AssertExpectations(t)
}

func TestPaymentHandler_webhookBadBody(t *testing.T) {
	processor := &MockPaymentProcessor{}
	handler := NewPaymentHandler(processor)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	c.Request = httptest.NewRequest("POST", "/payments/webhook", bytes.NewReader([]byte("not json")))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.webhook(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	processor.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}
