package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mentora/mentora-pay-api/internal/provider"
	"github.com/mentora/mentora-pay-api/internal/service"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/response"
)

// maxWebhookBody caps inbound webhook payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	settlement *service.SettlementService
	timeout    time.Duration
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(settlement *service.SettlementService, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookHandler{settlement: settlement, timeout: timeout}
}

// HandlePaymentEvent godoc
// @Summary Receive a payment provider webhook
// @Description Verifies the provider signature over the raw body and applies
// @Description the event to the payment ledger. Redelivery of the same event
// @Description is safe.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Provider-Signature header string true "Provider signature (t=...,v1=...)"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /webhooks/payments [post]
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	// Signature verification needs the exact raw bytes; binding helpers
	// would reserialize the body.
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read request body"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.settlement.ProcessWebhook(ctx, payload, c.GetHeader(provider.SignatureHeader)); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
