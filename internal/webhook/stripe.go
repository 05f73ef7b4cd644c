package webhook

import (
	"context"
	"io"
	"net/http"

	"whatsapp-inbox/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe payloads are small; anything larger is not a real event.
const maxStripeBody = 1 << 20

// EventProcessor applies verified Stripe events.
type EventProcessor interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

type StripeHandler struct {
	secret    string
	processor EventProcessor
}

func NewStripeHandler(secret string, processor EventProcessor) *StripeHandler {
	return &StripeHandler{secret: secret, processor: processor}
}

// HandleEvent verifies the Stripe-Signature header against the raw body before
// anything is parsed.
func (h *StripeHandler) HandleEvent(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStripeBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil || h.secret == "" {
		lg.Warn().Err(err).Msg("stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	if err := h.processor.HandleEvent(context.WithoutCancel(c.Request.Context()), event); err != nil {
		lg.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("stripe event processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
