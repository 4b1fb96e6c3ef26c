package store

import (
	"context"
	"time"
)

// DeviceToken represents a push notification token for a staff device
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "ios" or "android"
	CreatedAt time.Time `json:"created_at"`
}

// RegisterDeviceToken registers or updates a device token for a staff user
func (s *Store) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_tokens (user_id, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET
			platform = EXCLUDED.platform,
			created_at = NOW()
	`, userID, token, platform)
	return err
}

// UnregisterDeviceToken removes a device token
func (s *Store) UnregisterDeviceToken(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM device_tokens WHERE token = $1
	`, token)
	return err
}

// UnregisterUserDeviceTokens removes all device tokens for a staff user
func (s *Store) UnregisterUserDeviceTokens(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM device_tokens WHERE user_id = $1
	`, userID)
	return err
}

// GetUserDeviceTokens returns all device tokens for a staff user
func (s *Store) GetUserDeviceTokens(ctx context.Context, userID string) ([]DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, platform, created_at
		FROM device_tokens
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []DeviceToken
	for rows.Next() {
		var t DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// AllDeviceTokens returns every registered device token. Hot-lead alerts
// go to the whole studio team.
func (s *Store) AllDeviceTokens(ctx context.Context) ([]DeviceToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, token, platform, created_at
		FROM device_tokens
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []DeviceToken
	for rows.Next() {
		var t DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
