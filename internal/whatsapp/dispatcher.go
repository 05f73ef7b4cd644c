package whatsapp

import (
	"context"

	"whatsapp-inbox/internal/metrics"
	"whatsapp-inbox/internal/models"

	"github.com/rs/zerolog/log"
)

// DefaultTemplateLanguage is used for send_template automations.
const DefaultTemplateLanguage = "nl"

// Delivery is the outcome of a dispatch. Demo is set when the account has no
// credentials and nothing was sent to the provider.
type Delivery struct {
	MessageID string
	Demo      bool
}

// Dispatcher sends on behalf of an account, falling back to demo mode when
// the account is not connected to the Cloud API.
type Dispatcher struct {
	client *Client
}

func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) SendText(ctx context.Context, account *models.Account, to, body string) (Delivery, error) {
	return d.dispatch(account, to, func(creds Credentials) (string, error) {
		return d.client.SendText(ctx, creds, to, body)
	})
}

func (d *Dispatcher) SendTemplate(ctx context.Context, account *models.Account, to, name string) (Delivery, error) {
	return d.dispatch(account, to, func(creds Credentials) (string, error) {
		return d.client.SendTemplate(ctx, creds, to, name, DefaultTemplateLanguage)
	})
}

func (d *Dispatcher) dispatch(account *models.Account, to string, send func(Credentials) (string, error)) (Delivery, error) {
	if !account.HasCredentials() {
		log.Debug().Str("account_id", account.ID).Str("to", to).Msg("demo mode: skipping provider send")
		metrics.OutboundSends.WithLabelValues("demo").Inc()
		return Delivery{Demo: true}, nil
	}

	id, err := send(Credentials{
		AccessToken:   account.WhatsAppAccessToken,
		PhoneNumberID: account.WhatsAppPhoneNumberID,
	})
	if err != nil {
		metrics.OutboundSends.WithLabelValues("error").Inc()
		return Delivery{}, err
	}
	metrics.OutboundSends.WithLabelValues("ok").Inc()
	return Delivery{MessageID: id}, nil
}
