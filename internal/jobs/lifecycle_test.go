package jobs

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/florianweber/lena/internal/convo"
	"github.com/florianweber/lena/internal/scoring"
	"github.com/florianweber/lena/internal/store"
)

type fakeRegistry struct {
	sessions map[string]*convo.Session
	removed  []string
}

func newFakeRegistry(sessions ...*convo.Session) *fakeRegistry {
	r := &fakeRegistry{sessions: make(map[string]*convo.Session)}
	for _, s := range sessions {
		r.sessions[s.ID] = s
	}
	return r
}

func (r *fakeRegistry) All() []*convo.Session {
	out := make([]*convo.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *fakeRegistry) Remove(id string) {
	delete(r.sessions, id)
	r.removed = append(r.removed, id)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func sessionWithActivity(id string, last time.Time) *convo.Session {
	s := convo.NewSession(id, "de", last.Add(-5*time.Minute))
	s.LastActivity = last
	s.Transcript = append(s.Transcript, convo.Turn{Role: "assistant", Content: "Hallo!", At: last})
	return s
}

func TestSweepFinalizesEndedAndIdleSessions(t *testing.T) {
	now := time.Now().UTC()

	active := sessionWithActivity("active", now)
	idle := sessionWithActivity("idle", now.Add(-30*time.Minute))
	ended := sessionWithActivity("ended", now)
	endedAt := now.Add(-time.Minute)
	ended.EndedAt = &endedAt

	registry := newFakeRegistry(active, idle, ended)
	job := NewSessionLifecycleJob(registry, nil, nil, nil, nil, testLogger(), time.Minute, 15*time.Minute)

	job.Sweep(context.Background())

	if len(registry.removed) != 2 {
		t.Fatalf("removed %d sessions, want 2 (%v)", len(registry.removed), registry.removed)
	}
	if registry.sessions["active"] == nil {
		t.Error("active session was finalized")
	}
	if registry.sessions["idle"] != nil {
		t.Error("idle session not finalized")
	}
	if registry.sessions["ended"] != nil {
		t.Error("ended session not finalized")
	}
}

func TestSweepLeavesFreshSessionsAlone(t *testing.T) {
	now := time.Now().UTC()
	registry := newFakeRegistry(
		sessionWithActivity("a", now),
		sessionWithActivity("b", now.Add(-time.Minute)),
	)
	job := NewSessionLifecycleJob(registry, nil, nil, nil, nil, testLogger(), time.Minute, 15*time.Minute)

	job.Sweep(context.Background())

	if len(registry.removed) != 0 {
		t.Fatalf("removed %v, want none", registry.removed)
	}
}

func TestBuildSessionPayload(t *testing.T) {
	now := time.Now().UTC()
	s := convo.NewSession("s1", "de", now.Add(-90*time.Second))
	s.LastActivity = now
	s.Transcript = []convo.Turn{
		{Role: "assistant", Content: "Hallo!"},
		{Role: "user", Content: "Ich suche ein Hydrafacial."},
	}
	s.Contact.Name = "Maria Schmidt"
	s.Contact.Email = "maria@example.com"
	s.Contact.ScheduleDate = "2026-09-03"
	s.Contact.ScheduleTime = "16:00"
	s.ConsentGiven = true
	s.SignalLevel = scoring.SignalHot
	s.Lead.Score = 8.2
	s.Summary = "Beratung zu Gesichtsbehandlungen."

	p := buildSessionPayload(s, now)

	if p.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", p.SessionID)
	}
	if p.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %d, want 90", p.DurationSeconds)
	}
	if len(p.Transcript) != 2 || p.Transcript[1].Role != "user" {
		t.Fatalf("transcript = %+v, want 2 entries ending with user turn", p.Transcript)
	}
	if p.ContactInfo["name"] != "Maria Schmidt" {
		t.Errorf("name = %v, want Maria Schmidt", p.ContactInfo["name"])
	}
	if p.ContactInfo["schedule"] != "2026-09-03 um 16:00" {
		t.Errorf("schedule = %v, want date um time", p.ContactInfo["schedule"])
	}
	if p.ContactInfo["leadLevel"] != "HOT" {
		t.Errorf("leadLevel = %v, want HOT", p.ContactInfo["leadLevel"])
	}
	if p.ContactInfo["consentGiven"] != true {
		t.Errorf("consentGiven = %v, want true", p.ContactInfo["consentGiven"])
	}
	if p.ContactInfo["conversationBrief"] != "Beratung zu Gesichtsbehandlungen." {
		t.Errorf("conversationBrief = %v", p.ContactInfo["conversationBrief"])
	}
	if _, ok := p.ContactInfo["phone"]; ok {
		t.Error("empty phone should be omitted")
	}
}

func TestSweepArchivesTranscript(t *testing.T) {
	now := time.Now().UTC()
	s := sessionWithActivity("archived", now.Add(-30*time.Minute))
	s.Contact.Name = "Maria Schmidt"
	registry := newFakeRegistry(s)

	dir := t.TempDir()
	job := NewSessionLifecycleJob(registry, nil, nil, nil, nil, testLogger(), time.Minute, 15*time.Minute)
	job.SetArchiveDir(dir)

	job.Sweep(context.Background())

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive has %d files, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "CONVERSATION HISTORY") {
		t.Error("archive missing transcript header")
	}
	if !strings.Contains(text, "Name: Maria Schmidt") {
		t.Error("archive missing contact block")
	}
}

func TestBuildStoredPayload(t *testing.T) {
	now := time.Now().UTC()
	c := store.ChatSession{
		ID:             "s3",
		Name:           strptr("Anna Weber"),
		Phone:          strptr("+49 170 1234567"),
		ScheduleDate:   strptr("2026-09-05"),
		ScheduleTime:   strptr("10:00"),
		SignalLevel:    "WARM",
		LeadScore:      5.5,
		ConsentGiven:   true,
		StartedAt:      now.Add(-2 * time.Minute),
		LastActivityAt: now,
	}
	turns := []store.SessionTurn{
		{Role: "assistant", Content: "Hallo!"},
		{Role: "user", Content: "Was kostet ein Microneedling?"},
	}

	p := buildStoredPayload(c, turns, now)

	if p.DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %d, want 120", p.DurationSeconds)
	}
	if len(p.Transcript) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(p.Transcript))
	}
	if p.ContactInfo["phone"] != "+49 170 1234567" {
		t.Errorf("phone = %v", p.ContactInfo["phone"])
	}
	if p.ContactInfo["schedule"] != "2026-09-05 um 10:00" {
		t.Errorf("schedule = %v, want date um time", p.ContactInfo["schedule"])
	}
	if _, ok := p.ContactInfo["email"]; ok {
		t.Error("nil email should be omitted")
	}
}

func TestBuildSessionPayloadScheduleDateOnly(t *testing.T) {
	now := time.Now().UTC()
	s := convo.NewSession("s2", "de", now)
	s.Contact.ScheduleDate = "2026-09-03"

	p := buildSessionPayload(s, now)
	if p.ContactInfo["schedule"] != "2026-09-03" {
		t.Errorf("schedule = %v, want bare date", p.ContactInfo["schedule"])
	}
}
