package webhook

import (
	"context"
	"errors"
	"net/http"

	"whatsapp-inbox/internal/inbox"
	"whatsapp-inbox/internal/middleware"
	"whatsapp-inbox/internal/models"
	wire "whatsapp-inbox/pkg/models"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	verifyToken string
	pipeline    *inbox.Pipeline
}

func NewHandler(verifyToken string, pipeline *inbox.Pipeline) *Handler {
	return &Handler{verifyToken: verifyToken, pipeline: pipeline}
}

// VerifyWebhook answers Meta's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		middleware.LoggerFrom(c).Info().Msg("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
}

// HandleMessage processes every message and status of the delivery in order.
// Failures are logged per item; the provider always gets 200 so it does not
// redeliver the whole batch.
func (h *Handler) HandleMessage(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	var payload wire.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		lg.Warn().Err(err).Msg("invalid webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}

	// keep processing if Meta hangs up early
	ctx := context.WithoutCancel(c.Request.Context())

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				ev := normalize(&value, msg)
				err := h.pipeline.HandleInbound(ctx, ev)
				switch {
				case errors.Is(err, inbox.ErrAccountNotFound):
					lg.Debug().Str("phone_number_id", ev.PhoneNumberID).Msg("no account for sender id, dropped")
				case err != nil:
					lg.Error().Err(err).Str("wa_message_id", msg.ID).Msg("failed to process inbound message")
				}
			}
			for _, st := range value.Statuses {
				if err := h.pipeline.HandleStatus(ctx, st.ID, st.Status); err != nil {
					lg.Error().Err(err).Str("wa_message_id", st.ID).Msg("failed to apply status")
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// normalize maps a provider message onto the inbox's message fields.
func normalize(value *wire.ChangeValue, msg wire.InboundMessage) inbox.InboundEvent {
	ev := inbox.InboundEvent{
		PhoneNumberID:     value.Metadata.PhoneNumberID,
		From:              msg.From,
		ProfileName:       value.ProfileName(msg.From),
		ProviderMessageID: msg.ID,
		Type:              msg.Type,
	}

	switch msg.Type {
	case models.MessageText:
		if msg.Text != nil {
			ev.Content = nonEmpty(msg.Text.Body)
		}
	case models.MessageImage:
		if msg.Image != nil {
			ev.MediaURL = nonEmpty(msg.Image.Ref())
			ev.Content = nonEmpty(msg.Image.Caption)
		}
	case models.MessageDocument:
		if msg.Document != nil {
			ev.MediaURL = nonEmpty(msg.Document.Ref())
			ev.Content = nonEmpty(msg.Document.Filename)
		}
	}
	if ev.Type == "" {
		ev.Type = "unknown"
	}
	return ev
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
