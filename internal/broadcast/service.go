// Package broadcast delivers one-to-many campaigns to opted-in contacts.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-inbox/internal/metrics"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/whatsapp"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrNotFound    = errors.New("broadcast not found")
	ErrAlreadySent = errors.New("broadcast already sent or in progress")
)

// Sender delivers a single text to a contact on behalf of an account.
type Sender interface {
	SendText(ctx context.Context, account *models.Account, to, body string) (whatsapp.Delivery, error)
}

// Result summarizes one broadcast run.
type Result struct {
	Recipients int `json:"recipients"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

type Service struct {
	db     *gorm.DB
	sender Sender
	now    func() time.Time
}

func NewService(db *gorm.DB, sender Sender) *Service {
	return &Service{db: db, sender: sender, now: time.Now}
}

// Send claims a draft or scheduled broadcast and delivers it to every opted-in
// contact of its account. A broadcast is only ever sent once.
func (s *Service) Send(ctx context.Context, id string) (*Result, error) {
	db := s.db.WithContext(ctx)

	claim := db.Model(&models.Broadcast{}).
		Where("id = ? AND status IN ?", id, []string{models.BroadcastDraft, models.BroadcastScheduled}).
		Update("status", models.BroadcastSending)
	if claim.Error != nil {
		return nil, fmt.Errorf("claim broadcast: %w", claim.Error)
	}
	if claim.RowsAffected == 0 {
		var n int64
		if err := db.Model(&models.Broadcast{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("find broadcast: %w", err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadySent
	}

	res, err := s.deliver(ctx, id)
	if err != nil {
		s.finish(id, models.BroadcastFailed, 0)
		return nil, err
	}

	status := models.BroadcastSent
	if res.Recipients > 0 && res.Sent == 0 {
		status = models.BroadcastFailed
	}
	s.finish(id, status, res.Sent)

	log.Info().
		Str("broadcast_id", id).
		Int("recipients", res.Recipients).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Msg("broadcast delivered")
	return res, nil
}

func (s *Service) deliver(ctx context.Context, id string) (*Result, error) {
	db := s.db.WithContext(ctx)

	var b models.Broadcast
	if err := db.Where("id = ?", id).First(&b).Error; err != nil {
		return nil, fmt.Errorf("load broadcast: %w", err)
	}
	var account models.Account
	if err := db.Where("id = ?", b.AccountID).First(&account).Error; err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	var contacts []models.Contact
	if err := db.Where("account_id = ? AND opt_in = ?", account.ID, true).
		Order("created_at ASC").
		Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	res := &Result{Recipients: len(contacts)}
	for i := range contacts {
		if ctx.Err() != nil {
			res.Failed += len(contacts) - i
			break
		}
		if _, err := s.sender.SendText(ctx, &account, contacts[i].Phone, b.Body); err != nil {
			res.Failed++
			metrics.BroadcastRecipients.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("broadcast_id", id).Str("contact_id", contacts[i].ID).Msg("broadcast send failed")
			continue
		}
		res.Sent++
		metrics.BroadcastRecipients.WithLabelValues("ok").Inc()
	}
	return res, nil
}

// finish runs detached from the caller's context so a cancelled run still
// leaves the broadcast in a final state.
func (s *Service) finish(id, status string, sent int) {
	err := s.db.Model(&models.Broadcast{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"sent_count": sent,
		"sent_at":    s.now().UTC(),
	}).Error
	if err != nil {
		log.Error().Err(err).Str("broadcast_id", id).Msg("failed to finalize broadcast")
	}
}

// SendDue sends every scheduled broadcast whose time has come and returns how
// many were processed.
func (s *Service) SendDue(ctx context.Context) (int, error) {
	var due []models.Broadcast
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.BroadcastScheduled, s.now().UTC()).
		Order("scheduled_at ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("find due broadcasts: %w", err)
	}

	processed := 0
	for _, b := range due {
		if _, err := s.Send(ctx, b.ID); err != nil {
			if errors.Is(err, ErrAlreadySent) {
				continue
			}
			log.Error().Err(err).Str("broadcast_id", b.ID).Msg("scheduled broadcast failed")
		}
		processed++
	}
	return processed, nil
}

// FailInterrupted marks broadcasts left in sending by a previous process as
// failed. Some recipients may already have received them, so they are never
// retried automatically. Call it once at startup, before any Send.
func (s *Service) FailInterrupted(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Broadcast{}).
		Where("status = ?", models.BroadcastSending).
		Updates(map[string]interface{}{
			"status":  models.BroadcastFailed,
			"sent_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("fail interrupted broadcasts: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Warn().Int64("broadcasts", res.RowsAffected).Msg("marked interrupted broadcasts as failed")
	}
	return res.RowsAffected, nil
}
