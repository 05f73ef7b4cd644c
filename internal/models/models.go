package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation statuses
const (
	ConversationOpen       = "open"
	ConversationInProgress = "in_progress"
	ConversationClosed     = "closed"
)

// Message directions, types and delivery statuses
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	MessageText     = "text"
	MessageImage    = "image"
	MessageDocument = "document"
	MessageTemplate = "template"

	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Automation trigger and action kinds
const (
	TriggerOutsideBusinessHours = "outside_business_hours"
	TriggerFirstContact         = "first_contact"
	TriggerKeyword              = "keyword"

	ActionSendMessage  = "send_message"
	ActionSendTemplate = "send_template"
)

// Broadcast statuses
const (
	BroadcastDraft     = "draft"
	BroadcastScheduled = "scheduled"
	BroadcastSending   = "sending"
	BroadcastSent      = "sent"
	BroadcastFailed    = "failed"
)

// Payment link statuses
const (
	PaymentOpen    = "open"
	PaymentPaid    = "paid"
	PaymentExpired = "expired"
)

// Subscription plans
const (
	PlanFree     = "free"
	PlanStarter  = "starter"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Base supplies a UUID primary key generated on insert.
type Base struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Account is a business tenant with its WhatsApp Cloud API credentials.
type Account struct {
	Base
	Name                  string `gorm:"type:varchar(255)" json:"name"`
	WhatsAppPhoneNumberID string `gorm:"column:whatsapp_phone_number_id;type:varchar(64);index" json:"whatsapp_phone_number_id"`
	WhatsAppAccessToken   string `gorm:"column:whatsapp_access_token;type:text" json:"-"`
	MetaBusinessID        string `gorm:"type:varchar(64)" json:"meta_business_id"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasCredentials reports whether outbound sends can reach the provider.
func (a *Account) HasCredentials() bool {
	return a.WhatsAppAccessToken != "" && a.WhatsAppPhoneNumberID != ""
}

// Contact is unique per (account, phone).
type Contact struct {
	Base
	AccountID string   `gorm:"type:varchar(36);not null;uniqueIndex:ux_contacts_account_phone,priority:1" json:"account_id"`
	Phone     string   `gorm:"type:varchar(32);not null;uniqueIndex:ux_contacts_account_phone,priority:2" json:"phone"`
	Name      *string  `gorm:"type:varchar(255)" json:"name"`
	Labels    []string `gorm:"serializer:json;type:text" json:"labels"`
	OptIn     bool     `gorm:"default:false" json:"opt_in"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Conversation groups messages with one contact. The partial unique index on
// open conversations is created in database.Migrate.
type Conversation struct {
	Base
	AccountID     string     `gorm:"type:varchar(36);not null;index" json:"account_id"`
	ContactID     string     `gorm:"type:varchar(36);not null;index" json:"contact_id"`
	Contact       *Contact   `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Status        string     `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	AssignedTo    *string    `gorm:"type:varchar(64)" json:"assigned_to"`
	Labels        []string   `gorm:"serializer:json;type:text" json:"labels"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is append-only apart from status and provider id updates.
type Message struct {
	Base
	ConversationID    string  `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	Direction         string  `gorm:"type:varchar(10);not null" json:"direction"`
	Type              string  `gorm:"type:varchar(20);not null" json:"type"`
	Content           *string `gorm:"type:text" json:"content"`
	MediaURL          *string `gorm:"type:text" json:"media_url"`
	ProviderMessageID *string `gorm:"type:varchar(128);index" json:"provider_message_id"`
	Status            string  `gorm:"type:varchar(20);not null" json:"status"`
}

func (Message) TableName() string {
	return "messages"
}

// Automation is a trigger/action rule owned by an account.
type Automation struct {
	Base
	AccountID     string  `gorm:"type:varchar(36);not null;index" json:"account_id"`
	Name          string  `gorm:"type:varchar(255);not null" json:"name"`
	TriggerKind   string  `gorm:"type:varchar(40);not null" json:"trigger_kind"`
	TriggerValue  *string `gorm:"type:varchar(255)" json:"trigger_value"`
	ActionKind    string  `gorm:"type:varchar(40);not null;default:'send_message'" json:"action_kind"`
	ActionMessage *string `gorm:"type:text" json:"action_message"`
	Active        bool    `gorm:"not null" json:"active"`
}

func (Automation) TableName() string {
	return "automations"
}

// AutomationLog records one automation firing.
type AutomationLog struct {
	Base
	AutomationID   string `gorm:"type:varchar(36);index" json:"automation_id"`
	ConversationID string `gorm:"type:varchar(36);index" json:"conversation_id"`
	TriggerKind    string `gorm:"type:varchar(40)" json:"trigger_kind"`
	Success        bool   `json:"success"`
	ErrorMessage   string `gorm:"type:text" json:"error_message"`
}

func (AutomationLog) TableName() string {
	return "automation_logs"
}

type Broadcast struct {
	Base
	AccountID   string     `gorm:"type:varchar(36);not null;index" json:"account_id"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	Status      string     `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	SentCount   int        `gorm:"default:0" json:"sent_count"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
}

func (Broadcast) TableName() string {
	return "broadcasts"
}

// PaymentLink is a Stripe payment link (iDEAL + card) issued by an account.
type PaymentLink struct {
	Base
	AccountID      string     `gorm:"type:varchar(36);index" json:"account_id"`
	ContactID      *string    `gorm:"type:varchar(36);index" json:"contact_id"`
	Contact        *Contact   `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	AmountCents    int64      `gorm:"not null" json:"amount_cents"`
	Description    string     `gorm:"type:text" json:"description"`
	URL            string     `gorm:"type:text" json:"url"`
	ProviderLinkID string     `gorm:"type:varchar(128);index" json:"provider_link_id"`
	Status         string     `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	PaidAt         *time.Time `json:"paid_at"`
}

func (PaymentLink) TableName() string {
	return "payment_links"
}

type Subscription struct {
	Base
	AccountID            string     `gorm:"type:varchar(36);index" json:"account_id"`
	Plan                 string     `gorm:"type:varchar(20);not null;default:'free'" json:"plan"`
	StripeSubscriptionID *string    `gorm:"type:varchar(128);index" json:"stripe_subscription_id"`
	ValidUntil           *time.Time `json:"valid_until"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Contact{},
		&Conversation{},
		&Message{},
		&Automation{},
		&AutomationLog{},
		&Broadcast{},
		&PaymentLink{},
		&Subscription{},
	}
}
