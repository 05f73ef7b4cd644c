package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

const initialBackoff = 500 * time.Millisecond

// ErrNoMessageID is returned when the Cloud API accepts a send but the
// response carries no message id.
var ErrNoMessageID = errors.New("whatsapp: response without message id")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: %d - %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Credentials identify the sending business number.
type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

type Client struct {
	baseURL  string
	version  string
	http     *http.Client
	attempts uint
}

// NewClient builds a Cloud API client. attempts < 1 is treated as a single try.
func NewClient(baseURL, version string, timeout time.Duration, attempts int) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:  baseURL,
		version:  version,
		http:     &http.Client{Timeout: timeout},
		attempts: uint(attempts),
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextObj     `json:"text,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type TemplateObj struct {
	Name     string      `json:"name"`
	Language LanguageObj `json:"language"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// --- Messaging Methods ---

// SendText posts a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (string, error) {
	return c.Send(ctx, creds, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	})
}

// SendTemplate posts an approved template without parameters.
func (c *Client) SendTemplate(ctx context.Context, creds Credentials, to, name, languageCode string) (string, error) {
	return c.Send(ctx, creds, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &TemplateObj{
			Name:     name,
			Language: LanguageObj{Code: languageCode},
		},
	})
}

// Send posts msg to /{phone_number_id}/messages, retrying temporary failures
// up to the configured number of attempts.
func (c *Client) Send(ctx context.Context, creds Credentials, msg GenericMessage) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, creds.PhoneNumberID)

	var id string
	err := retry.Do(
		func() error {
			var err error
			id, err = c.post(ctx, url, creds.AccessToken, msg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(initialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTemporary),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("to", msg.To).Msg("retrying whatsapp send")
		}),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) post(ctx context.Context, url, token string, body interface{}) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode whatsapp response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", ErrNoMessageID
	}
	return parsed.Messages[0].ID, nil
}

func isTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// transport failures; context errors are handled by retry.Context
	return !errors.Is(err, ErrNoMessageID)
}
