// Package inbox turns provider events into contacts, conversations and
// messages and hands inbound messages to the automation engine.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-inbox/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// statusPredecessors lists, per target status, the statuses a message may
// move from. Transitions only go forward.
var statusPredecessors = map[string][]string{
	models.StatusDelivered: {models.StatusSent},
	models.StatusRead:      {models.StatusSent, models.StatusDelivered},
	models.StatusFailed:    {models.StatusSent, models.StatusDelivered},
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for callers composing their own queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// FindAccountByPhoneNumberID returns the account that owns a WhatsApp sender id.
func (s *Store) FindAccountByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Account, error) {
	if phoneNumberID == "" {
		return nil, ErrAccountNotFound
	}
	var acc models.Account
	err := s.db.WithContext(ctx).
		Where("whatsapp_phone_number_id = ?", phoneNumberID).
		Order("created_at ASC").
		First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &acc, nil
}

// Resolve returns the contact for (account, phone) and its open conversation,
// creating either when missing. Inserts use ON CONFLICT DO NOTHING against the
// unique indexes and re-read, so concurrent first messages converge on the
// same rows.
func (s *Store) Resolve(ctx context.Context, account *models.Account, phone, name string) (*models.Contact, *models.Conversation, error) {
	contact, err := s.findOrCreateContact(ctx, account.ID, phone, name)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.findOrCreateOpenConversation(ctx, account.ID, contact.ID)
	if err != nil {
		return nil, nil, err
	}
	conv.Contact = contact
	return contact, conv, nil
}

func (s *Store) findOrCreateContact(ctx context.Context, accountID, phone, name string) (*models.Contact, error) {
	db := s.db.WithContext(ctx)
	lookup := func() (*models.Contact, error) {
		var c models.Contact
		err := db.Where("account_id = ? AND phone = ?", accountID, phone).First(&c).Error
		if err != nil {
			return nil, err
		}
		return &c, nil
	}

	if c, err := lookup(); err == nil {
		return c, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find contact: %w", err)
	}

	c := models.Contact{AccountID: accountID, Phone: phone, Labels: []string{}}
	if name != "" {
		c.Name = &name
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	found, err := lookup()
	if err != nil {
		return nil, fmt.Errorf("reload contact: %w", err)
	}
	return found, nil
}

func (s *Store) findOrCreateOpenConversation(ctx context.Context, accountID, contactID string) (*models.Conversation, error) {
	db := s.db.WithContext(ctx)
	lookup := func() (*models.Conversation, error) {
		var conv models.Conversation
		err := db.Where("account_id = ? AND contact_id = ? AND status = ?", accountID, contactID, models.ConversationOpen).
			First(&conv).Error
		if err != nil {
			return nil, err
		}
		return &conv, nil
	}

	if conv, err := lookup(); err == nil {
		return conv, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	now := time.Now().UTC()
	conv := models.Conversation{
		AccountID:     accountID,
		ContactID:     contactID,
		Status:        models.ConversationOpen,
		Labels:        []string{},
		LastMessageAt: &now,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	found, err := lookup()
	if err != nil {
		return nil, fmt.Errorf("reload conversation: %w", err)
	}
	return found, nil
}

// RecordMessage inserts msg and touches the conversation's last activity.
func (s *Store) RecordMessage(ctx context.Context, msg *models.Message) error {
	db := s.db.WithContext(ctx)
	if err := db.Create(msg).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	err := db.Model(&models.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("last_message_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// ActiveAutomations returns the account's active rules, oldest first.
func (s *Store) ActiveAutomations(ctx context.Context, accountID string) ([]models.Automation, error) {
	var rules []models.Automation
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND active = ?", accountID, true).
		Order("created_at ASC").Order("id ASC").
		Find(&rules).Error
	return rules, err
}

// HasEarlierInbound reports whether the conversation holds any inbound
// message other than messageID.
func (s *Store) HasEarlierInbound(ctx context.Context, conversationID, messageID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND direction = ? AND id <> ?", conversationID, models.DirectionInbound, messageID).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) LogFiring(ctx context.Context, entry *models.AutomationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// UpdateStatusByProviderID applies a delivery status to every message carrying
// the provider id, skipping backward transitions. Unknown statuses are ignored.
func (s *Store) UpdateStatusByProviderID(ctx context.Context, providerMessageID, status string) (int64, error) {
	from, ok := statusPredecessors[status]
	if !ok || providerMessageID == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("provider_message_id = ? AND status IN ?", providerMessageID, from).
		Update("status", status)
	if res.Error != nil {
		return 0, fmt.Errorf("update message status: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ConversationWithAccount loads a conversation plus its contact and account.
func (s *Store) ConversationWithAccount(ctx context.Context, conversationID string) (*models.Conversation, *models.Account, error) {
	db := s.db.WithContext(ctx)
	var conv models.Conversation
	err := db.Preload("Contact").Where("id = ?", conversationID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find conversation: %w", err)
	}
	if conv.Contact == nil {
		return nil, nil, ErrConversationNotFound
	}

	var acc models.Account
	err = db.Where("id = ?", conv.AccountID).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find account: %w", err)
	}
	return &conv, &acc, nil
}
