package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/service/payments"
)

// PaymentProcessor is implemented by payments.Reconciler.
type PaymentProcessor interface {
	Handle(ctx context.Context, ev payments.Event) error
}

type PaymentHandler struct {
	reconciler PaymentProcessor
}

func NewPaymentHandler(reconciler PaymentProcessor) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/webhook", h.webhook)
}

// webhook receives payment events whose signatures have already been verified
// by the payment collaborator upstream.
func (h *PaymentHandler) webhook(c *gin.Context) {
	var ev payments.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, domain.Validation("invalid request body: %v", err))
		return
	}

	if err := h.reconciler.Handle(c.Request.Context(), ev); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
