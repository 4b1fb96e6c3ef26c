package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ChatSession is the persisted view of one customer conversation.
type ChatSession struct {
	ID                string     `json:"id"`
	Language          string     `json:"language"`
	Channel           string     `json:"channel"` // "web", "voice"
	Stage             string     `json:"stage"`
	Name              *string    `json:"name,omitempty"`
	Email             *string    `json:"email,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	PreferredContact  *string    `json:"preferred_contact,omitempty"`
	ScheduleDate      *string    `json:"schedule_date,omitempty"`
	ScheduleTime      *string    `json:"schedule_time,omitempty"`
	ConsentGiven      bool       `json:"consent_given"`
	ResponseCount     int        `json:"response_count"`
	SearchCount       int        `json:"search_count"`
	TreatmentsSeen    int        `json:"treatments_seen"`
	SignalLevel       string     `json:"signal_level"`
	LeadScore         float64    `json:"lead_score"`
	LeadConfidencePct int        `json:"lead_confidence_pct"`
	Summary           *string    `json:"summary,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
}

// SessionTurn is one persisted transcript entry.
type SessionTurn struct {
	ID          string    `json:"id,omitempty"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"` // "user" or "assistant"
	Content     string    `json:"content"`
	Category    *string   `json:"category,omitempty"`
	SignalLevel *string   `json:"signal_level,omitempty"`
	Sequence    int       `json:"sequence"`
	CreatedAt   time.Time `json:"created_at"`
}

// Lead is a submitted, consented contact with its qualification snapshot.
type Lead struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	Name             string          `json:"name"`
	Email            *string         `json:"email,omitempty"`
	Phone            *string         `json:"phone,omitempty"`
	PreferredContact *string         `json:"preferred_contact,omitempty"`
	Score            float64         `json:"score"`
	ConfidencePct    int             `json:"confidence_pct"`
	SignalLevel      string          `json:"signal_level"`
	BreakdownJSON    json.RawMessage `json:"breakdown_json"`
	PurchaseTiming   *string         `json:"purchase_timing,omitempty"`
	NextStep         *string         `json:"next_step,omitempty"`
	Reachability     *string         `json:"reachability,omitempty"`
	ScheduleDate     *string         `json:"schedule_date,omitempty"`
	ScheduleTime     *string         `json:"schedule_time,omitempty"`
	Summary          *string         `json:"summary,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	NotifiedAt       *time.Time      `json:"notified_at,omitempty"`
}

// StaffUser is a dashboard login.
type StaffUser struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Name         *string    `json:"name,omitempty"`
	Role         string     `json:"role"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AuthSession represents a JWT session for logout/invalidation.
type AuthSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ============================================================================
// Chat session operations
// ============================================================================

// CreateChatSession inserts a fresh session row.
func (s *Store) CreateChatSession(ctx context.Context, id, language, channel string, startedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, language, channel, stage, started_at, last_activity_at)
		VALUES ($1, $2, $3, 'greeting', $4, $4)
		ON CONFLICT (id) DO NOTHING
	`, id, language, channel, startedAt)
	return err
}

// UpdateChatSessionState writes the per-turn snapshot: stage, counters and
// the current lead assessment.
func (s *Store) UpdateChatSessionState(ctx context.Context, c ChatSession) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET stage = $1,
		    response_count = $2,
		    search_count = $3,
		    treatments_seen = $4,
		    signal_level = $5,
		    lead_score = $6,
		    lead_confidence_pct = $7,
		    last_activity_at = $8
		WHERE id = $9
	`, c.Stage, c.ResponseCount, c.SearchCount, c.TreatmentsSeen,
		c.SignalLevel, c.LeadScore, c.LeadConfidencePct, c.LastActivityAt, c.ID)
	return err
}

// UpdateChatSessionContact writes contact and consent fields.
func (s *Store) UpdateChatSessionContact(ctx context.Context, c ChatSession) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET name = $1,
		    email = $2,
		    phone = $3,
		    preferred_contact = $4,
		    schedule_date = $5,
		    schedule_time = $6,
		    consent_given = $7,
		    summary = $8
		WHERE id = $9
	`, c.Name, c.Email, c.Phone, c.PreferredContact,
		c.ScheduleDate, c.ScheduleTime, c.ConsentGiven, c.Summary, c.ID)
	return err
}

// EndChatSession stamps ended_at; finalization (webhook, summary email)
// happens later via the lifecycle job.
func (s *Store) EndChatSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions SET ended_at = COALESCE(ended_at, $1) WHERE id = $2
	`, at, id)
	return err
}

// GetChatSession fetches one session row.
func (s *Store) GetChatSession(ctx context.Context, id string) (*ChatSession, error) {
	var c ChatSession
	err := s.db.QueryRow(ctx, `
		SELECT id, language, channel, stage, name, email, phone, preferred_contact,
		       schedule_date, schedule_time, consent_given,
		       response_count, search_count, treatments_seen,
		       COALESCE(signal_level, 'MILD'), COALESCE(lead_score, 0), COALESCE(lead_confidence_pct, 0),
		       summary, started_at, last_activity_at, ended_at, finalized_at
		FROM sessions
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Language, &c.Channel, &c.Stage, &c.Name, &c.Email, &c.Phone, &c.PreferredContact,
		&c.ScheduleDate, &c.ScheduleTime, &c.ConsentGiven,
		&c.ResponseCount, &c.SearchCount, &c.TreatmentsSeen,
		&c.SignalLevel, &c.LeadScore, &c.LeadConfidencePct,
		&c.Summary, &c.StartedAt, &c.LastActivityAt, &c.EndedAt, &c.FinalizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListRecentChatSessions returns the newest sessions for the dashboard.
func (s *Store) ListRecentChatSessions(ctx context.Context, limit int) ([]ChatSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, language, channel, stage, name, email, phone, preferred_contact,
		       schedule_date, schedule_time, consent_given,
		       response_count, search_count, treatments_seen,
		       COALESCE(signal_level, 'MILD'), COALESCE(lead_score, 0), COALESCE(lead_confidence_pct, 0),
		       summary, started_at, last_activity_at, ended_at, finalized_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSession
	for rows.Next() {
		var c ChatSession
		if err := rows.Scan(
			&c.ID, &c.Language, &c.Channel, &c.Stage, &c.Name, &c.Email, &c.Phone, &c.PreferredContact,
			&c.ScheduleDate, &c.ScheduleTime, &c.ConsentGiven,
			&c.ResponseCount, &c.SearchCount, &c.TreatmentsSeen,
			&c.SignalLevel, &c.LeadScore, &c.LeadConfidencePct,
			&c.Summary, &c.StartedAt, &c.LastActivityAt, &c.EndedAt, &c.FinalizedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUnfinalizedSessions returns ended-or-idle sessions awaiting
// finalization: ended explicitly, or with no activity since the cutoff.
func (s *Store) ListUnfinalizedSessions(ctx context.Context, idleBefore time.Time) ([]ChatSession, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, language, channel, stage, name, email, phone, preferred_contact,
		       schedule_date, schedule_time, consent_given,
		       response_count, search_count, treatments_seen,
		       COALESCE(signal_level, 'MILD'), COALESCE(lead_score, 0), COALESCE(lead_confidence_pct, 0),
		       summary, started_at, last_activity_at, ended_at, finalized_at
		FROM sessions
		WHERE finalized_at IS NULL
		  AND (ended_at IS NOT NULL OR last_activity_at < $1)
		ORDER BY started_at ASC
	`, idleBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSession
	for rows.Next() {
		var c ChatSession
		if err := rows.Scan(
			&c.ID, &c.Language, &c.Channel, &c.Stage, &c.Name, &c.Email, &c.Phone, &c.PreferredContact,
			&c.ScheduleDate, &c.ScheduleTime, &c.ConsentGiven,
			&c.ResponseCount, &c.SearchCount, &c.TreatmentsSeen,
			&c.SignalLevel, &c.LeadScore, &c.LeadConfidencePct,
			&c.Summary, &c.StartedAt, &c.LastActivityAt, &c.EndedAt, &c.FinalizedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkSessionFinalized stamps a session after webhook delivery and
// summary handling so the lifecycle job never processes it twice.
func (s *Store) MarkSessionFinalized(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET finalized_at = $1,
		    ended_at = COALESCE(ended_at, $1)
		WHERE id = $2
	`, at, id)
	return err
}

// ============================================================================
// Turn operations
// ============================================================================

// InsertTurn appends one transcript entry.
func (s *Store) InsertTurn(ctx context.Context, t SessionTurn) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO turns (id, session_id, role, content, category, signal_level, sequence, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
	`, t.SessionID, t.Role, t.Content, t.Category, t.SignalLevel, t.Sequence, t.CreatedAt)
	return err
}

// GetSessionTurns returns a session's transcript in order.
func (s *Store) GetSessionTurns(ctx context.Context, sessionID string) ([]SessionTurn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, role, content, category, signal_level, sequence, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY sequence ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionTurn
	for rows.Next() {
		var t SessionTurn
		if err := rows.Scan(&t.SessionID, &t.Role, &t.Content, &t.Category, &t.SignalLevel, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ============================================================================
// Lead operations
// ============================================================================

// InsertLead stores a consented lead. One lead per session; re-submission
// updates the snapshot.
func (s *Store) InsertLead(ctx context.Context, l Lead) (string, error) {
	breakdown := l.BreakdownJSON
	if len(breakdown) == 0 {
		breakdown = json.RawMessage(`{}`)
	}
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO leads (id, session_id, name, email, phone, preferred_contact,
		                   score, confidence_pct, signal_level, breakdown_json,
		                   purchase_timing, next_step, reachability,
		                   schedule_date, schedule_time, summary, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (session_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			preferred_contact = EXCLUDED.preferred_contact,
			score = EXCLUDED.score,
			confidence_pct = EXCLUDED.confidence_pct,
			signal_level = EXCLUDED.signal_level,
			breakdown_json = EXCLUDED.breakdown_json,
			purchase_timing = EXCLUDED.purchase_timing,
			next_step = EXCLUDED.next_step,
			reachability = EXCLUDED.reachability,
			schedule_date = EXCLUDED.schedule_date,
			schedule_time = EXCLUDED.schedule_time,
			summary = EXCLUDED.summary
		RETURNING id
	`, l.SessionID, l.Name, l.Email, l.Phone, l.PreferredContact,
		l.Score, l.ConfidencePct, l.SignalLevel, breakdown,
		l.PurchaseTiming, l.NextStep, l.Reachability,
		l.ScheduleDate, l.ScheduleTime, l.Summary, l.CreatedAt).Scan(&id)
	return id, err
}

// GetLead fetches one lead.
func (s *Store) GetLead(ctx context.Context, id string) (*Lead, error) {
	var l Lead
	var breakdown []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id, name, email, phone, preferred_contact,
		       score, confidence_pct, signal_level, breakdown_json,
		       purchase_timing, next_step, reachability,
		       schedule_date, schedule_time, summary, created_at, notified_at
		FROM leads
		WHERE id = $1
	`, id).Scan(
		&l.ID, &l.SessionID, &l.Name, &l.Email, &l.Phone, &l.PreferredContact,
		&l.Score, &l.ConfidencePct, &l.SignalLevel, &breakdown,
		&l.PurchaseTiming, &l.NextStep, &l.Reachability,
		&l.ScheduleDate, &l.ScheduleTime, &l.Summary, &l.CreatedAt, &l.NotifiedAt,
	)
	if err != nil {
		return nil, err
	}
	l.BreakdownJSON = rawOrEmpty(breakdown)
	return &l, nil
}

// ListLeads returns the newest leads first.
func (s *Store) ListLeads(ctx context.Context, limit int) ([]Lead, error) {
	return s.listLeads(ctx, `
		SELECT id, session_id, name, email, phone, preferred_contact,
		       score, confidence_pct, signal_level, breakdown_json,
		       purchase_timing, next_step, reachability,
		       schedule_date, schedule_time, summary, created_at, notified_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

// ListLeadsCreatedSince returns leads for the daily digest.
func (s *Store) ListLeadsCreatedSince(ctx context.Context, since time.Time) ([]Lead, error) {
	return s.listLeads(ctx, `
		SELECT id, session_id, name, email, phone, preferred_contact,
		       score, confidence_pct, signal_level, breakdown_json,
		       purchase_timing, next_step, reachability,
		       schedule_date, schedule_time, summary, created_at, notified_at
		FROM leads
		WHERE created_at >= $1
		ORDER BY score DESC, created_at DESC
	`, since)
}

func (s *Store) listLeads(ctx context.Context, query string, arg any) ([]Lead, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		var breakdown []byte
		if err := rows.Scan(
			&l.ID, &l.SessionID, &l.Name, &l.Email, &l.Phone, &l.PreferredContact,
			&l.Score, &l.ConfidencePct, &l.SignalLevel, &breakdown,
			&l.PurchaseTiming, &l.NextStep, &l.Reachability,
			&l.ScheduleDate, &l.ScheduleTime, &l.Summary, &l.CreatedAt, &l.NotifiedAt,
		); err != nil {
			return nil, err
		}
		l.BreakdownJSON = rawOrEmpty(breakdown)
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkLeadNotified stamps the staff notification time.
func (s *Store) MarkLeadNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads SET notified_at = $1 WHERE id = $2 AND notified_at IS NULL
	`, at, id)
	return err
}

// ============================================================================
// Staff user operations
// ============================================================================

// GetStaffUserByEmail looks up a dashboard login. Returns nil when the
// email is unknown so callers can treat it as invalid credentials.
func (s *Store) GetStaffUserByEmail(ctx context.Context, email string) (*StaffUser, error) {
	var u StaffUser
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, name, role, last_login_at, created_at
		FROM staff_users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.LastLoginAt, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetStaffUser fetches a staff user by ID.
func (s *Store) GetStaffUser(ctx context.Context, id string) (*StaffUser, error) {
	var u StaffUser
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, name, role, last_login_at, created_at
		FROM staff_users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.LastLoginAt, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateStaffUser inserts a dashboard login and returns its ID.
func (s *Store) CreateStaffUser(ctx context.Context, email, passwordHash, role string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO staff_users (id, email, password_hash, role)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id
	`, email, passwordHash, role).Scan(&id)
	return id, err
}

// UpdateStaffLastLogin records a successful login.
func (s *Store) UpdateStaffLastLogin(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE staff_users SET last_login_at = NOW() WHERE id = $1
	`, id)
	return err
}

// ============================================================================
// Auth session operations
// ============================================================================

// CreateAuthSession creates a new revocable JWT session.
func (s *Store) CreateAuthSession(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, tokenHash, expiresAt)
	return err
}

// RevokeAuthSession revokes a session by token hash.
func (s *Store) RevokeAuthSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE auth_sessions SET revoked_at = NOW() WHERE token_hash = $1
	`, tokenHash)
	return err
}

// IsAuthSessionValid checks if a session is valid (not revoked and not expired).
func (s *Store) IsAuthSessionValid(ctx context.Context, tokenHash string) (bool, error) {
	var valid bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auth_sessions
			WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		)
	`, tokenHash).Scan(&valid)
	return valid, err
}

func rawOrEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(b)
}
