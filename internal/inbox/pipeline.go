package inbox

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-inbox/internal/automation"
	"whatsapp-inbox/internal/metrics"
	"whatsapp-inbox/internal/models"

	"github.com/rs/zerolog/log"
)

// InboundEvent is one normalized message from the WhatsApp webhook.
type InboundEvent struct {
	PhoneNumberID     string
	From              string
	ProfileName       string
	ProviderMessageID string
	Type              string
	Content           *string
	MediaURL          *string
}

// Notifier receives changes for live dashboards. Implementations must not block.
type Notifier interface {
	NotifyMessage(msg *models.Message)
	NotifyStatus(providerMessageID, status string)
}

type Pipeline struct {
	store    *Store
	engine   *automation.Engine
	notifier Notifier
}

// NewPipeline wires the resolver, recorder and evaluator. notifier may be nil.
func NewPipeline(store *Store, engine *automation.Engine, notifier Notifier) *Pipeline {
	return &Pipeline{store: store, engine: engine, notifier: notifier}
}

// HandleInbound resolves the sender, records the message and runs the
// account's automations. ErrAccountNotFound means the event was dropped.
func (p *Pipeline) HandleInbound(ctx context.Context, ev InboundEvent) error {
	account, err := p.store.FindAccountByPhoneNumberID(ctx, ev.PhoneNumberID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			metrics.DroppedEvents.WithLabelValues("unknown_account").Inc()
		}
		return err
	}

	contact, conv, err := p.store.Resolve(ctx, account, ev.From, ev.ProfileName)
	if err != nil {
		metrics.DroppedEvents.WithLabelValues("resolve_failed").Inc()
		return fmt.Errorf("resolve sender: %w", err)
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Direction:      models.DirectionInbound,
		Type:           ev.Type,
		Content:        ev.Content,
		MediaURL:       ev.MediaURL,
		Status:         models.StatusDelivered,
	}
	if ev.ProviderMessageID != "" {
		id := ev.ProviderMessageID
		msg.ProviderMessageID = &id
	}
	if err := p.store.RecordMessage(ctx, msg); err != nil {
		metrics.DroppedEvents.WithLabelValues("record_failed").Inc()
		return err
	}
	metrics.InboundMessages.WithLabelValues(ev.Type).Inc()
	p.notifyMessage(msg)

	log.Info().
		Str("account_id", account.ID).
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Str("type", msg.Type).
		Msg("inbound message recorded")

	if p.engine == nil {
		return nil
	}
	replies, err := p.engine.Evaluate(ctx, automation.Inbound{
		Account:      account,
		Conversation: conv,
		Contact:      contact,
		Message:      msg,
	})
	if err != nil {
		// the message is stored; automation problems do not fail the event
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("automation evaluation failed")
		return nil
	}
	for _, r := range replies {
		p.notifyMessage(r)
	}
	return nil
}

// HandleStatus applies a delivery status update reported by the provider.
func (p *Pipeline) HandleStatus(ctx context.Context, providerMessageID, status string) error {
	n, err := p.store.UpdateStatusByProviderID(ctx, providerMessageID, status)
	if err != nil {
		return err
	}
	if n > 0 && p.notifier != nil {
		p.notifier.NotifyStatus(providerMessageID, status)
	}
	return nil
}

func (p *Pipeline) notifyMessage(msg *models.Message) {
	if p.notifier != nil {
		p.notifier.NotifyMessage(msg)
	}
}
