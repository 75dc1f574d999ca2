package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

func newTestSender(t *testing.T, baseURL string) *EmailSender {
	t.Helper()
	sender, err := NewEmailSender(&config.MailConfig{
		APIKey:      "test-key",
		FromAddress: "info@popust.ba",
		FromName:    "Popust",
		BaseURL:     baseURL,
	})
	require.NoError(t, err)
	return sender
}

func TestEmailSender_Send(t *testing.T) {
	var got emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "msg_123"}`))
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)
	receipt, err := sender.Send(context.Background(), providers.MailMessage{
		To:      "kupac@example.com",
		Subject: "2 nova proizvoda",
		HTML:    "<p>test</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", receipt.MessageID)
	assert.Equal(t, "Popust <info@popust.ba>", got.From)
	assert.Equal(t, []string{"kupac@example.com"}, got.To)
}

func TestEmailSender_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message": "invalid recipient"}`))
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)
	_, err := sender.Send(context.Background(), providers.MailMessage{
		To:      "not-an-address",
		Subject: "x",
		HTML:    "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestEmailSender_MissingRecipient(t *testing.T) {
	sender := newTestSender(t, "http://localhost:0")
	_, err := sender.Send(context.Background(), providers.MailMessage{Subject: "x"})
	require.Error(t, err)
}

func TestEmailSender_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)
	msg := providers.MailMessage{To: "kupac@example.com", Subject: "x", HTML: "x"}

	for i := 0; i < 5; i++ {
		_, err := sender.Send(context.Background(), msg)
		require.Error(t, err)
	}

	_, err := sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, providers.ErrUpstreamUnavailable), "expected open breaker, got %v", err)
}
