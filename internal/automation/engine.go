package automation

import (
	"context"
	"fmt"
	"time"

	"whatsapp-inbox/internal/metrics"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/whatsapp"

	"github.com/rs/zerolog/log"
)

// Repository is the persistence the engine needs.
type Repository interface {
	ActiveAutomations(ctx context.Context, accountID string) ([]models.Automation, error)
	HasEarlierInbound(ctx context.Context, conversationID, messageID string) (bool, error)
	RecordMessage(ctx context.Context, msg *models.Message) error
	LogFiring(ctx context.Context, entry *models.AutomationLog) error
}

// Sender delivers automation replies.
type Sender interface {
	SendText(ctx context.Context, account *models.Account, to, body string) (whatsapp.Delivery, error)
	SendTemplate(ctx context.Context, account *models.Account, to, name string) (whatsapp.Delivery, error)
}

// Inbound is everything the engine knows about a freshly recorded message.
type Inbound struct {
	Account      *models.Account
	Conversation *models.Conversation
	Contact      *models.Contact
	Message      *models.Message
}

type Engine struct {
	repo   Repository
	sender Sender
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine evaluates business hours in loc; nil means server local time.
func NewEngine(repo Repository, sender Sender, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{repo: repo, sender: sender, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every active automation of the account against the inbound
// message, in creation order. Each matching rule fires on its own; a failing
// rule is logged and the rest still run. The recorded replies are returned.
func (e *Engine) Evaluate(ctx context.Context, in Inbound) ([]*models.Message, error) {
	rules, err := e.repo.ActiveAutomations(ctx, in.Account.ID)
	if err != nil {
		return nil, fmt.Errorf("load automations: %w", err)
	}

	now := e.now()
	var replies []*models.Message
	for i := range rules {
		rule := &rules[i]
		lg := log.With().
			Str("automation_id", rule.ID).
			Str("trigger", rule.TriggerKind).
			Str("conversation_id", in.Conversation.ID).
			Logger()

		fire, err := e.matches(ctx, rule, in, now)
		if err != nil {
			lg.Error().Err(err).Msg("automation check failed")
			metrics.AutomationFirings.WithLabelValues(rule.TriggerKind, "error").Inc()
			continue
		}
		if !fire {
			continue
		}

		lg.Info().Str("name", rule.Name).Msg("automation matched")
		reply, sendErr := e.fire(ctx, rule, in)
		if reply != nil {
			replies = append(replies, reply)
		}
		e.logFiring(ctx, rule, in.Conversation.ID, sendErr)
	}
	return replies, nil
}

func (e *Engine) matches(ctx context.Context, rule *models.Automation, in Inbound, now time.Time) (bool, error) {
	switch rule.TriggerKind {
	case models.TriggerOutsideBusinessHours:
		return !IsBusinessHours(now, e.loc), nil
	case models.TriggerFirstContact:
		earlier, err := e.repo.HasEarlierInbound(ctx, in.Conversation.ID, in.Message.ID)
		if err != nil {
			return false, err
		}
		return !earlier, nil
	case models.TriggerKeyword:
		if rule.TriggerValue == nil {
			return false, nil
		}
		return MatchKeyword(in.Message.Content, *rule.TriggerValue), nil
	default:
		log.Warn().Str("trigger", rule.TriggerKind).Msg("unknown trigger kind")
		return false, nil
	}
}

// fire sends the rule's action and records it as an outbound message. The
// reply is recorded as sent even when the provider call fails; the send error
// is returned for the firing log.
func (e *Engine) fire(ctx context.Context, rule *models.Automation, in Inbound) (*models.Message, error) {
	if rule.ActionMessage == nil || *rule.ActionMessage == "" {
		return nil, nil
	}

	reply := &models.Message{
		ConversationID: in.Conversation.ID,
		Direction:      models.DirectionOutbound,
		Status:         models.StatusSent,
	}
	var delivery whatsapp.Delivery
	var sendErr error
	switch rule.ActionKind {
	case models.ActionSendTemplate:
		name := *rule.ActionMessage
		reply.Type = models.MessageTemplate
		reply.Content = &name
		delivery, sendErr = e.sender.SendTemplate(ctx, in.Account, in.Contact.Phone, name)
	default:
		text := renderReply(*rule.ActionMessage, contactName(in.Contact), deref(in.Message.Content))
		reply.Type = models.MessageText
		reply.Content = &text
		delivery, sendErr = e.sender.SendText(ctx, in.Account, in.Contact.Phone, text)
	}

	if sendErr != nil {
		log.Error().Err(sendErr).Str("automation_id", rule.ID).Str("to", in.Contact.Phone).Msg("automation reply not delivered")
	} else if delivery.MessageID != "" {
		id := delivery.MessageID
		reply.ProviderMessageID = &id
	}

	if err := e.repo.RecordMessage(ctx, reply); err != nil {
		log.Error().Err(err).Str("automation_id", rule.ID).Msg("record automation reply")
		if sendErr == nil {
			sendErr = err
		}
		return nil, sendErr
	}
	return reply, sendErr
}

func (e *Engine) logFiring(ctx context.Context, rule *models.Automation, conversationID string, err error) {
	entry := &models.AutomationLog{
		AutomationID:   rule.ID,
		ConversationID: conversationID,
		TriggerKind:    rule.TriggerKind,
		Success:        err == nil,
	}
	outcome := "ok"
	if err != nil {
		entry.ErrorMessage = err.Error()
		outcome = "failed"
	}
	metrics.AutomationFirings.WithLabelValues(rule.TriggerKind, outcome).Inc()

	if logErr := e.repo.LogFiring(ctx, entry); logErr != nil {
		log.Warn().Err(logErr).Str("automation_id", rule.ID).Msg("write automation log")
	}
}

func contactName(c *models.Contact) string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Phone
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
