package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of session event
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventMessageClassified EventType = "message_classified"
	EventSignalDetected    EventType = "signal_detected"
	EventLeadScored        EventType = "lead_scored"
	EventExpertOffered     EventType = "expert_offered"
	EventExpertAccepted    EventType = "expert_accepted"
	EventExpertDeclined    EventType = "expert_declined"
	EventResetTriggered    EventType = "reset_triggered"
	EventLeadSubmitted     EventType = "lead_submitted"
	EventConsentGranted    EventType = "consent_granted"
	EventConsentDeclined   EventType = "consent_declined"
	EventEmailSent         EventType = "email_sent"
	EventEmailFailed       EventType = "email_failed"
	EventWebhookSent       EventType = "webhook_sent"
	EventWebhookFailed     EventType = "webhook_failed"
	EventPushSent          EventType = "push_sent"
	EventSessionCompleted  EventType = "session_completed"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
