package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"whatsapp-inbox/internal/metrics"
	"whatsapp-inbox/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("amount must be at least 0.01")
	ErrNotConfigured = errors.New("payments are not configured")
)

// Stripe event types handled by HandleEvent.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// CreateLinkInput is the payment-link request as received from the dashboard.
// Amount is in euros.
type CreateLinkInput struct {
	Amount      float64
	Description string
	Phone       string
	AccountID   string
	ContactID   string
}

type Service struct {
	db       *gorm.DB
	provider Provider
	now      func() time.Time
}

// NewService builds the service. provider may be nil when Stripe is not configured.
func NewService(db *gorm.DB, provider Provider) *Service {
	return &Service{db: db, provider: provider, now: time.Now}
}

// AmountToCents converts euros to cents, rejecting anything below one cent.
func AmountToCents(amount float64) (int64, error) {
	if math.IsNaN(amount) || amount < 0.01 {
		return 0, ErrInvalidAmount
	}
	return int64(math.Round(amount * 100)), nil
}

// CreateLink creates the Stripe link and stores it as open. A phone number
// resolves an existing contact, within the account when one is given.
func (s *Service) CreateLink(ctx context.Context, in CreateLinkInput) (*models.PaymentLink, error) {
	cents, err := AmountToCents(in.Amount)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, ErrNotConfigured
	}

	created, err := s.provider.CreatePaymentLink(ctx, LinkRequest{
		AmountCents: cents,
		Description: in.Description,
		Phone:       in.Phone,
		AccountID:   in.AccountID,
	})
	if err != nil {
		return nil, err
	}

	link := &models.PaymentLink{
		AccountID:      in.AccountID,
		AmountCents:    cents,
		Description:    in.Description,
		URL:            created.URL,
		ProviderLinkID: created.ID,
		Status:         models.PaymentOpen,
	}
	if in.ContactID != "" {
		id := in.ContactID
		link.ContactID = &id
	} else if in.Phone != "" {
		if contact := s.findContactByPhone(ctx, in.AccountID, in.Phone); contact != nil {
			link.ContactID = &contact.ID
			if link.AccountID == "" {
				link.AccountID = contact.AccountID
			}
		}
	}

	db := s.db.WithContext(ctx)
	if err := db.Create(link).Error; err != nil {
		return nil, fmt.Errorf("store payment link: %w", err)
	}
	if link.ContactID != nil {
		var c models.Contact
		if err := db.First(&c, "id = ?", *link.ContactID).Error; err == nil {
			link.Contact = &c
		}
	}
	return link, nil
}

func (s *Service) findContactByPhone(ctx context.Context, accountID, phone string) *models.Contact {
	q := s.db.WithContext(ctx).Where("phone = ?", phone)
	if accountID != "" {
		q = q.Where("account_id = ?", accountID)
	}
	var c models.Contact
	if err := q.Order("created_at ASC").First(&c).Error; err != nil {
		return nil
	}
	return &c
}

// ListLinks returns the account's payment links, newest first.
func (s *Service) ListLinks(ctx context.Context, accountID string) ([]models.PaymentLink, error) {
	var links []models.PaymentLink
	err := s.db.WithContext(ctx).
		Preload("Contact").
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&links).Error
	return links, err
}

// HandleEvent applies a verified Stripe event. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	metrics.StripeEvents.WithLabelValues(string(event.Type)).Inc()

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		if session.PaymentLink == nil || session.PaymentLink.ID == "" {
			return nil
		}
		_, err := s.MarkPaid(ctx, session.PaymentLink.ID)
		return err

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		var validUntil *time.Time
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			validUntil = &t
		}
		return s.updateSubscription(ctx, sub.ID, map[string]interface{}{"valid_until": validUntil})

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.updateSubscription(ctx, sub.ID, map[string]interface{}{
			"plan":        models.PlanFree,
			"valid_until": nil,
		})

	default:
		log.Debug().Str("type", string(event.Type)).Msg("ignoring stripe event")
		return nil
	}
}

// likeEscaper makes Stripe ids literal inside a LIKE pattern; they always
// contain '_'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// MarkPaid marks the payment links issued under the Stripe link id as paid.
// Links are matched on the stored id or on the id appearing in the URL.
func (s *Service) MarkPaid(ctx context.Context, providerLinkID string) (int64, error) {
	if providerLinkID == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.PaymentLink{}).
		Where(`(provider_link_id = ? OR url LIKE ? ESCAPE '\') AND status <> ?`,
			providerLinkID, "%"+likeEscaper.Replace(providerLinkID)+"%", models.PaymentPaid).
		Updates(map[string]interface{}{
			"status":  models.PaymentPaid,
			"paid_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mark payment link paid: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Info().Str("payment_link", providerLinkID).Msg("checkout completed for unknown payment link")
	} else {
		log.Info().Str("payment_link", providerLinkID).Int64("rows", res.RowsAffected).Msg("payment link paid")
	}
	return res.RowsAffected, nil
}

func (s *Service) updateSubscription(ctx context.Context, stripeID string, updates map[string]interface{}) error {
	if stripeID == "" {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		log.Info().Str("subscription", stripeID).Msg("stripe subscription not linked to an account")
	}
	return nil
}
