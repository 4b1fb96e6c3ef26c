package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookConfig holds configuration for the session ingest endpoint
type WebhookConfig struct {
	URL         string
	APIKey      string
	CompanyName string
	Timeout     time.Duration // defaults to 10s
	Retries     int           // defaults to 3
}

// WebhookClient ships finished sessions to the external lead-tracking
// endpoint
type WebhookClient struct {
	cfg        WebhookConfig
	logger     *log.Logger
	httpClient *http.Client
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(cfg WebhookConfig, logger *log.Logger) (*WebhookClient, error) {
	if cfg.URL == "" {
		logger.Println("Webhook: no URL configured, session ingest disabled")
		return nil, nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}

	logger.Printf("Webhook: client initialized (url=%s)", cfg.URL)

	return &WebhookClient{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// TranscriptEntry is one message in the webhook transcript
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionPayload describes one finished session
type SessionPayload struct {
	SessionID       string            `json:"sessionId"`
	Date            string            `json:"date"`
	DurationSeconds int               `json:"durationSeconds"`
	Transcript      []TranscriptEntry `json:"transcript"`
	ContactInfo     map[string]any    `json:"contactInfo"`
}

type webhookRequest struct {
	APIKey      string           `json:"apiKey"`
	CompanyName string           `json:"companyName"`
	Sessions    []SessionPayload `json:"sessions"`
}

// SendSession delivers one session to the ingest endpoint. Empty
// transcripts are skipped. Success is HTTP 200 or 201.
func (c *WebhookClient) SendSession(ctx context.Context, session SessionPayload) error {
	if c == nil {
		return nil
	}
	if len(session.Transcript) == 0 {
		c.logger.Printf("Webhook: session %s has no transcript, skipping", session.SessionID)
		return nil
	}
	if session.ContactInfo == nil {
		session.ContactInfo = map[string]any{}
	}

	body, err := json.Marshal(webhookRequest{
		APIKey:      c.cfg.APIKey,
		CompanyName: c.cfg.CompanyName,
		Sessions:    []SessionPayload{session},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			c.logger.Printf("Webhook: session %s delivered", session.SessionID)
			return nil
		}
		c.logger.Printf("Webhook: attempt %d/%d for session %s failed: %v", attempt, c.cfg.Retries, session.SessionID, lastErr)
		if attempt < c.cfg.Retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return fmt.Errorf("webhook delivery for session %s failed after %d attempts: %w", session.SessionID, c.cfg.Retries, lastErr)
}

func (c *WebhookClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
