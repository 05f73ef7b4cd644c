package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{AccessToken: "tok", PhoneNumberID: "1055"}

func TestSendText_PostsCloudAPIShape(t *testing.T) {
	var got GenericMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/1055/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.out1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 1)
	id, err := c.SendText(context.Background(), testCreds, "+31611111111", "Hallo")
	require.NoError(t, err)

	assert.Equal(t, "wamid.out1", id)
	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "+31611111111", got.To)
	assert.Equal(t, "text", got.Type)
	require.NotNil(t, got.Text)
	assert.Equal(t, "Hallo", got.Text.Body)
}

func TestSendTemplate(t *testing.T) {
	var got GenericMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.tpl"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 1)
	id, err := c.SendTemplate(context.Background(), testCreds, "+31600000000", "welkom", "nl")
	require.NoError(t, err)
	assert.Equal(t, "wamid.tpl", id)
	require.NotNil(t, got.Template)
	assert.Equal(t, "welkom", got.Template.Name)
	assert.Equal(t, "nl", got.Template.Language.Code)
}

func TestSend_NonSuccessReturnsAPIError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 3)
	_, err := c.SendText(context.Background(), testCreds, "x", "y")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid recipient")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors are not retried")
}

func TestSend_SingleAttemptByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 0)
	_, err := c.SendText(context.Background(), testCreds, "x", "y")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSend_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.retry"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 2)
	id, err := c.SendText(context.Background(), testCreds, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, "wamid.retry", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSend_MissingMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "v19.0", time.Second, 2)
	_, err := c.SendText(context.Background(), testCreds, "x", "y")
	assert.ErrorIs(t, err, ErrNoMessageID)
}
