package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func testSessionID() string {
	return fmt.Sprintf("test-session-%d", time.Now().UnixNano())
}

func strptr(s string) *string { return &s }

func TestChatSessionOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	id := testSessionID()
	started := time.Now().UTC().Truncate(time.Millisecond)

	if err := s.CreateChatSession(ctx, id, "de", "web", started); err != nil {
		t.Fatalf("CreateChatSession failed: %v", err)
	}
	// Re-creating the same session must be a no-op
	if err := s.CreateChatSession(ctx, id, "de", "web", started); err != nil {
		t.Fatalf("CreateChatSession (repeat) failed: %v", err)
	}

	sess, err := s.GetChatSession(ctx, id)
	if err != nil {
		t.Fatalf("GetChatSession failed: %v", err)
	}
	if sess.Stage != "greeting" {
		t.Errorf("stage = %q, want %q", sess.Stage, "greeting")
	}
	if sess.Language != "de" || sess.Channel != "web" {
		t.Errorf("language/channel = %q/%q, want de/web", sess.Language, sess.Channel)
	}
	if sess.ConsentGiven {
		t.Error("new session should not have consent")
	}

	// Per-turn snapshot
	sess.Stage = "consultation"
	sess.ResponseCount = 3
	sess.SearchCount = 2
	sess.TreatmentsSeen = 7
	sess.SignalLevel = "WARM"
	sess.LeadScore = 5.5
	sess.LeadConfidencePct = 70
	sess.LastActivityAt = started.Add(2 * time.Minute)
	if err := s.UpdateChatSessionState(ctx, *sess); err != nil {
		t.Fatalf("UpdateChatSessionState failed: %v", err)
	}

	// Contact + consent
	sess.Name = strptr("Maria Schmidt")
	sess.Email = strptr("maria@example.com")
	sess.PreferredContact = strptr("email")
	sess.ConsentGiven = true
	sess.Summary = strptr("Interessiert an Gesichtsbehandlung.")
	if err := s.UpdateChatSessionContact(ctx, *sess); err != nil {
		t.Fatalf("UpdateChatSessionContact failed: %v", err)
	}

	got, err := s.GetChatSession(ctx, id)
	if err != nil {
		t.Fatalf("GetChatSession failed: %v", err)
	}
	if got.Stage != "consultation" || got.SearchCount != 2 || got.SignalLevel != "WARM" {
		t.Errorf("state not persisted: stage=%q search=%d signal=%q", got.Stage, got.SearchCount, got.SignalLevel)
	}
	if got.LeadScore != 5.5 || got.LeadConfidencePct != 70 {
		t.Errorf("lead snapshot = %.1f/%d, want 5.5/70", got.LeadScore, got.LeadConfidencePct)
	}
	if got.Name == nil || *got.Name != "Maria Schmidt" {
		t.Errorf("name not persisted: %v", got.Name)
	}
	if !got.ConsentGiven {
		t.Error("consent not persisted")
	}
	if got.EndedAt != nil {
		t.Error("session should not be ended yet")
	}

	ended := started.Add(5 * time.Minute)
	if err := s.EndChatSession(ctx, id, ended); err != nil {
		t.Fatalf("EndChatSession failed: %v", err)
	}
	// Ending again must not move the timestamp
	if err := s.EndChatSession(ctx, id, ended.Add(time.Hour)); err != nil {
		t.Fatalf("EndChatSession (repeat) failed: %v", err)
	}

	got, err = s.GetChatSession(ctx, id)
	if err != nil {
		t.Fatalf("GetChatSession failed: %v", err)
	}
	if got.EndedAt == nil {
		t.Fatal("ended_at should be set")
	}
	if !got.EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, ended)
	}

	sessions, err := s.ListRecentChatSessions(ctx, 50)
	if err != nil {
		t.Fatalf("ListRecentChatSessions failed: %v", err)
	}
	found := false
	for _, c := range sessions {
		if c.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("created session not in recent list")
	}
}

func TestSessionFinalization(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	id := testSessionID()
	started := time.Now().UTC().Add(-time.Hour)
	if err := s.CreateChatSession(ctx, id, "de", "web", started); err != nil {
		t.Fatalf("CreateChatSession failed: %v", err)
	}

	// Idle well past the cutoff, never explicitly ended
	pending, err := s.ListUnfinalizedSessions(ctx, time.Now().UTC().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListUnfinalizedSessions failed: %v", err)
	}
	found := false
	for _, c := range pending {
		if c.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatal("idle session should be pending finalization")
	}

	if err := s.MarkSessionFinalized(ctx, id, time.Now().UTC()); err != nil {
		t.Fatalf("MarkSessionFinalized failed: %v", err)
	}

	pending, err = s.ListUnfinalizedSessions(ctx, time.Now().UTC().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListUnfinalizedSessions failed: %v", err)
	}
	for _, c := range pending {
		if c.ID == id {
			t.Error("finalized session should not be pending anymore")
		}
	}

	got, err := s.GetChatSession(ctx, id)
	if err != nil {
		t.Fatalf("GetChatSession failed: %v", err)
	}
	if got.FinalizedAt == nil {
		t.Error("finalized_at should be set")
	}
	if got.EndedAt == nil {
		t.Error("finalization should stamp ended_at")
	}
}

func TestTurnOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	id := testSessionID()
	now := time.Now().UTC()
	if err := s.CreateChatSession(ctx, id, "de", "web", now); err != nil {
		t.Fatalf("CreateChatSession failed: %v", err)
	}

	turns := []SessionTurn{
		{SessionID: id, Role: "assistant", Content: "Guten Tag! Willkommen bei Beauty Lounge Warendorf.", Sequence: 0, CreatedAt: now},
		{SessionID: id, Role: "user", Content: "Ich suche eine Gesichtsbehandlung", Category: strptr("specific_query"), SignalLevel: strptr("WARM"), Sequence: 1, CreatedAt: now.Add(time.Second)},
		{SessionID: id, Role: "assistant", Content: "Gerne! Hier sind passende Behandlungen.", Sequence: 2, CreatedAt: now.Add(2 * time.Second)},
	}
	for _, turn := range turns {
		if err := s.InsertTurn(ctx, turn); err != nil {
			t.Fatalf("InsertTurn failed: %v", err)
		}
	}

	got, err := s.GetSessionTurns(ctx, id)
	if err != nil {
		t.Fatalf("GetSessionTurns failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}
	for i, turn := range got {
		if turn.Sequence != i {
			t.Errorf("turn %d sequence = %d", i, turn.Sequence)
		}
	}
	if got[1].Category == nil || *got[1].Category != "specific_query" {
		t.Errorf("turn category not persisted: %v", got[1].Category)
	}
	if got[1].SignalLevel == nil || *got[1].SignalLevel != "WARM" {
		t.Errorf("turn signal level not persisted: %v", got[1].SignalLevel)
	}
	if got[0].Category != nil {
		t.Error("assistant turn should have no category")
	}
}

func TestLeadOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	sessionID := testSessionID()
	now := time.Now().UTC()
	if err := s.CreateChatSession(ctx, sessionID, "de", "web", now); err != nil {
		t.Fatalf("CreateChatSession failed: %v", err)
	}

	breakdown, _ := json.Marshal(map[string]float64{"hot_signals": 3.0, "searches": 1.5})
	lead := Lead{
		SessionID:      sessionID,
		Name:           "Maria Schmidt",
		Email:          strptr("maria@example.com"),
		Score:          7.4,
		ConfidencePct:  85,
		SignalLevel:    "HOT",
		BreakdownJSON:  breakdown,
		PurchaseTiming: strptr("diese Woche"),
		CreatedAt:      now,
	}

	id, err := s.InsertLead(ctx, lead)
	if err != nil {
		t.Fatalf("InsertLead failed: %v", err)
	}
	if id == "" {
		t.Fatal("lead ID should not be empty")
	}

	got, err := s.GetLead(ctx, id)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if got.Name != "Maria Schmidt" || got.Score != 7.4 || got.ConfidencePct != 85 {
		t.Errorf("lead = %q %.1f/%d, want Maria Schmidt 7.4/85", got.Name, got.Score, got.ConfidencePct)
	}
	if got.SignalLevel != "HOT" {
		t.Errorf("signal level = %q, want HOT", got.SignalLevel)
	}
	var bd map[string]float64
	if err := json.Unmarshal(got.BreakdownJSON, &bd); err != nil {
		t.Fatalf("breakdown not valid JSON: %v", err)
	}
	if bd["hot_signals"] != 3.0 {
		t.Errorf("breakdown hot_signals = %v, want 3", bd["hot_signals"])
	}
	if got.NotifiedAt != nil {
		t.Error("new lead should not be notified")
	}

	// Re-submission for the same session updates the snapshot
	lead.Score = 8.1
	lead.Phone = strptr("+49 151 1234567")
	id2, err := s.InsertLead(ctx, lead)
	if err != nil {
		t.Fatalf("InsertLead (upsert) failed: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert created new lead %q, want %q", id2, id)
	}
	got, err = s.GetLead(ctx, id)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if got.Score != 8.1 {
		t.Errorf("score after upsert = %.1f, want 8.1", got.Score)
	}
	if got.Phone == nil || *got.Phone != "+49 151 1234567" {
		t.Errorf("phone after upsert = %v", got.Phone)
	}

	if err := s.MarkLeadNotified(ctx, id, now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkLeadNotified failed: %v", err)
	}
	got, err = s.GetLead(ctx, id)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if got.NotifiedAt == nil {
		t.Error("notified_at should be set")
	}

	leads, err := s.ListLeads(ctx, 100)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	found := false
	for _, l := range leads {
		if l.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("lead not in list")
	}

	since, err := s.ListLeadsCreatedSince(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListLeadsCreatedSince failed: %v", err)
	}
	found = false
	for _, l := range since {
		if l.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("lead not in digest window")
	}
}

func TestStaffUserOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	email := fmt.Sprintf("staff-%d@example.com", time.Now().UnixNano())
	id, err := s.CreateStaffUser(ctx, email, "$2a$10$fakehashfortesting", "staff")
	if err != nil {
		t.Fatalf("CreateStaffUser failed: %v", err)
	}

	u, err := s.GetStaffUserByEmail(ctx, email)
	if err != nil {
		t.Fatalf("GetStaffUserByEmail failed: %v", err)
	}
	if u == nil {
		t.Fatal("staff user not found")
	}
	if u.ID != id || u.Role != "staff" {
		t.Errorf("user = %q role %q, want %q role staff", u.ID, u.Role, id)
	}
	if u.LastLoginAt != nil {
		t.Error("fresh user should have no last login")
	}

	missing, err := s.GetStaffUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetStaffUserByEmail (missing) failed: %v", err)
	}
	if missing != nil {
		t.Error("unknown email should return nil")
	}

	if err := s.UpdateStaffLastLogin(ctx, id); err != nil {
		t.Fatalf("UpdateStaffLastLogin failed: %v", err)
	}
	u, err = s.GetStaffUser(ctx, id)
	if err != nil {
		t.Fatalf("GetStaffUser failed: %v", err)
	}
	if u.LastLoginAt == nil {
		t.Error("last_login_at should be set")
	}
}

func TestAuthSessionOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	email := fmt.Sprintf("auth-%d@example.com", time.Now().UnixNano())
	userID, err := s.CreateStaffUser(ctx, email, "$2a$10$fakehashfortesting", "staff")
	if err != nil {
		t.Fatalf("CreateStaffUser failed: %v", err)
	}

	hash := fmt.Sprintf("tokenhash-%d", time.Now().UnixNano())
	if err := s.CreateAuthSession(ctx, userID, hash, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateAuthSession failed: %v", err)
	}

	valid, err := s.IsAuthSessionValid(ctx, hash)
	if err != nil {
		t.Fatalf("IsAuthSessionValid failed: %v", err)
	}
	if !valid {
		t.Error("fresh session should be valid")
	}

	if err := s.RevokeAuthSession(ctx, hash); err != nil {
		t.Fatalf("RevokeAuthSession failed: %v", err)
	}
	valid, err = s.IsAuthSessionValid(ctx, hash)
	if err != nil {
		t.Fatalf("IsAuthSessionValid failed: %v", err)
	}
	if valid {
		t.Error("revoked session should be invalid")
	}

	// Expired sessions are invalid even without revocation
	expired := fmt.Sprintf("expiredhash-%d", time.Now().UnixNano())
	if err := s.CreateAuthSession(ctx, userID, expired, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("CreateAuthSession failed: %v", err)
	}
	valid, err = s.IsAuthSessionValid(ctx, expired)
	if err != nil {
		t.Fatalf("IsAuthSessionValid failed: %v", err)
	}
	if valid {
		t.Error("expired session should be invalid")
	}
}

func TestDeviceTokenOperations(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	email := fmt.Sprintf("device-%d@example.com", time.Now().UnixNano())
	userID, err := s.CreateStaffUser(ctx, email, "$2a$10$fakehashfortesting", "staff")
	if err != nil {
		t.Fatalf("CreateStaffUser failed: %v", err)
	}

	token := fmt.Sprintf("apns-token-%d", time.Now().UnixNano())
	if err := s.RegisterDeviceToken(ctx, userID, token, "ios"); err != nil {
		t.Fatalf("RegisterDeviceToken failed: %v", err)
	}
	// Re-registering the same token updates the platform
	if err := s.RegisterDeviceToken(ctx, userID, token, "android"); err != nil {
		t.Fatalf("RegisterDeviceToken (repeat) failed: %v", err)
	}

	tokens, err := s.GetUserDeviceTokens(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserDeviceTokens failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("got %d tokens, want 1", len(tokens))
	}
	if tokens[0].Platform != "android" {
		t.Errorf("platform = %q, want android after upsert", tokens[0].Platform)
	}

	all, err := s.AllDeviceTokens(ctx)
	if err != nil {
		t.Fatalf("AllDeviceTokens failed: %v", err)
	}
	found := false
	for _, dt := range all {
		if dt.Token == token {
			found = true
		}
	}
	if !found {
		t.Error("registered token not in AllDeviceTokens")
	}

	if err := s.UnregisterDeviceToken(ctx, token); err != nil {
		t.Fatalf("UnregisterDeviceToken failed: %v", err)
	}
	tokens, err = s.GetUserDeviceTokens(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserDeviceTokens failed: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("got %d tokens after unregister, want 0", len(tokens))
	}
}
