package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/providers"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

// EmailSender sends transactional email through the Resend HTTP API. All
// calls go through a circuit breaker so a dead mail provider fails fast
// instead of stalling a whole notification batch.
type EmailSender struct {
	apiKey      string
	fromAddress string
	fromName    string
	baseURL     string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.MailConfig) (*EmailSender, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("mail api key is required")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &EmailSender{
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: breaker,
	}, nil
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type emailResponse struct {
	ID string `json:"id"`
}

// Send delivers a single message and returns the provider receipt
func (s *EmailSender) Send(ctx context.Context, msg providers.MailMessage) (*providers.MailReceipt, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("recipient address is required")
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.send(ctx, msg)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: mail circuit open", providers.ErrUpstreamUnavailable)
		}
		return nil, err
	}

	return result.(*providers.MailReceipt), nil
}

func (s *EmailSender) send(ctx context.Context, msg providers.MailMessage) (*providers.MailReceipt, error) {
	payload := emailRequest{
		From:    fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress),
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mail API error (status %d): %s", resp.StatusCode, string(body))
	}

	var mailResp emailResponse
	if err := json.Unmarshal(body, &mailResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if mailResp.ID == "" {
		return nil, fmt.Errorf("no message ID in response")
	}

	return &providers.MailReceipt{MessageID: mailResp.ID}, nil
}
