package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/florianweber/lena/internal/convo"
	"github.com/florianweber/lena/internal/costs"
	"github.com/florianweber/lena/internal/eventlog"
	"github.com/florianweber/lena/internal/notifications"
	"github.com/florianweber/lena/internal/store"
)

// Registry is the live session registry the job sweeps. Satisfied by
// httpapi.SessionRegistry.
type Registry interface {
	All() []*convo.Session
	Remove(id string)
}

// SessionLifecycleJob finalizes finished conversations. It runs on a
// configurable interval (default: 1 minute) and for every session that
// was explicitly ended or has been idle past the timeout:
// - Delivers the transcript to the ingest webhook
// - Mails the conversation summary to the customer (with consent)
// - Marks the session finalized and drops it from the registry
type SessionLifecycleJob struct {
	registry    Registry
	store       *store.Store
	webhook     *notifications.WebhookClient
	mailer      *notifications.Mailer
	eventLog    *eventlog.Logger
	logger      *log.Logger
	interval    time.Duration
	idleTimeout time.Duration
	archiveDir  string
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewSessionLifecycleJob creates a new session lifecycle job.
func NewSessionLifecycleJob(registry Registry, s *store.Store, webhook *notifications.WebhookClient,
	mailer *notifications.Mailer, eventLog *eventlog.Logger, logger *log.Logger,
	interval, idleTimeout time.Duration) *SessionLifecycleJob {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	if idleTimeout == 0 {
		idleTimeout = 15 * time.Minute
	}
	if eventLog == nil {
		eventLog = eventlog.New(nil)
	}
	return &SessionLifecycleJob{
		registry:    registry,
		store:       s,
		webhook:     webhook,
		mailer:      mailer,
		eventLog:    eventLog,
		logger:      logger,
		interval:    interval,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
	}
}

// SetArchiveDir enables plain-text transcript archival on finalize.
func (j *SessionLifecycleJob) SetArchiveDir(dir string) {
	j.archiveDir = dir
}

// Start begins the background job.
func (j *SessionLifecycleJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.Printf("SessionLifecycleJob: started (interval=%v, idle=%v)", j.interval, j.idleTimeout)
}

// Stop gracefully stops the background job.
func (j *SessionLifecycleJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Println("SessionLifecycleJob: stopped")
}

func (j *SessionLifecycleJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(context.Background())
		case <-j.stopCh:
			return
		}
	}
}

// Sweep finalizes every session that is ended or idle. Exposed so the
// server can run a last sweep during shutdown.
func (j *SessionLifecycleJob) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.idleTimeout)

	finalized := 0
	live := make(map[string]bool)
	for _, s := range j.registry.All() {
		live[s.ID] = true
		if s.EndedAt == nil && !s.LastActivity.Before(cutoff) {
			continue
		}
		j.finalize(ctx, s)
		finalized++
	}
	finalized += j.sweepOrphans(ctx, cutoff, live)
	if finalized > 0 {
		j.logger.Printf("SessionLifecycleJob: finalized %d sessions", finalized)
	}
}

// sweepOrphans finalizes persisted sessions that no longer have a live
// counterpart, typically left behind by a restart. Their transcripts are
// rebuilt from the stored turns.
func (j *SessionLifecycleJob) sweepOrphans(ctx context.Context, cutoff time.Time, live map[string]bool) int {
	if j.store == nil {
		return 0
	}

	orphans, err := j.store.ListUnfinalizedSessions(ctx, cutoff)
	if err != nil {
		j.logger.Printf("SessionLifecycleJob: failed to list unfinalized sessions: %v", err)
		return 0
	}

	finalized := 0
	for _, c := range orphans {
		if live[c.ID] {
			continue
		}
		turns, err := j.store.GetSessionTurns(ctx, c.ID)
		if err != nil {
			j.logger.Printf("SessionLifecycleJob: failed to load turns for %s: %v", c.ID, err)
			continue
		}

		if err := j.webhook.SendSession(ctx, buildStoredPayload(c, turns, time.Now().UTC())); err != nil {
			j.logger.Printf("SessionLifecycleJob: webhook failed for orphan %s: %v", c.ID, err)
			j.eventLog.LogAsync(c.ID, eventlog.EventWebhookFailed, map[string]any{"error": err.Error()})
		} else {
			j.eventLog.LogAsync(c.ID, eventlog.EventWebhookSent, map[string]any{"recovered": true})
		}

		if err := j.store.MarkSessionFinalized(ctx, c.ID, time.Now().UTC()); err != nil {
			j.logger.Printf("SessionLifecycleJob: failed to mark orphan %s finalized: %v", c.ID, err)
			continue
		}
		finalized++
	}
	return finalized
}

func (j *SessionLifecycleJob) finalize(ctx context.Context, s *convo.Session) {
	now := time.Now().UTC()

	j.archiveTranscript(s)

	if err := j.webhook.SendSession(ctx, buildSessionPayload(s, now)); err != nil {
		j.logger.Printf("SessionLifecycleJob: webhook failed for %s: %v", s.ID, err)
		j.eventLog.LogAsync(s.ID, eventlog.EventWebhookFailed, map[string]any{"error": err.Error()})
	} else {
		j.eventLog.LogAsync(s.ID, eventlog.EventWebhookSent, nil)
	}

	// Summary mail only with recorded consent and an address to send to
	if s.ConsentGiven && s.Contact.Email != "" && s.Summary != "" {
		if err := j.mailer.SendSummaryEmail(s.Contact.Email, s.Summary); err != nil {
			j.logger.Printf("SessionLifecycleJob: summary mail failed for %s: %v", s.ID, err)
			j.eventLog.LogAsync(s.ID, eventlog.EventEmailFailed, map[string]any{"kind": "summary", "error": err.Error()})
		} else {
			j.eventLog.LogAsync(s.ID, eventlog.EventEmailSent, map[string]any{"kind": "summary"})
		}
	}

	if j.store != nil {
		if err := j.store.MarkSessionFinalized(ctx, s.ID, now); err != nil {
			j.logger.Printf("SessionLifecycleJob: failed to mark %s finalized: %v", s.ID, err)
		}
	}

	cost := costs.CalculateSessionCosts(costs.SessionMetrics{
		LLMInputTokens:  s.Usage.PromptTokens,
		LLMOutputTokens: s.Usage.CompletionTokens,
	})
	j.logger.Printf("SessionLifecycleJob: session %s finalized (%d turns, %d tokens, %d cents)",
		s.ID, len(s.Transcript), s.Usage.TotalTokens, cost.TotalCostCents)

	j.registry.Remove(s.ID)
}

// archiveTranscript writes the rendered conversation record to the
// archive directory, one file per session.
func (j *SessionLifecycleJob) archiveTranscript(s *convo.Session) {
	if j.archiveDir == "" || len(s.Transcript) == 0 {
		return
	}
	if err := os.MkdirAll(j.archiveDir, 0o755); err != nil {
		j.logger.Printf("SessionLifecycleJob: failed to create archive dir: %v", err)
		return
	}
	name := fmt.Sprintf("session_%s_%s.txt", s.CreatedAt.Format("20060102_150405"), s.ID)
	path := filepath.Join(j.archiveDir, name)
	if err := os.WriteFile(path, []byte(convo.RenderTranscript(s)), 0o644); err != nil {
		j.logger.Printf("SessionLifecycleJob: failed to archive %s: %v", s.ID, err)
	}
}

// buildSessionPayload flattens a live session into the webhook shape.
// Empty contact fields are omitted to keep the payload clean.
func buildSessionPayload(s *convo.Session, now time.Time) notifications.SessionPayload {
	transcript := make([]notifications.TranscriptEntry, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		transcript = append(transcript, notifications.TranscriptEntry{Role: t.Role, Content: t.Content})
	}

	schedule := ""
	if s.Contact.ScheduleDate != "" && s.Contact.ScheduleTime != "" {
		schedule = s.Contact.ScheduleDate + " um " + s.Contact.ScheduleTime
	} else if s.Contact.ScheduleDate != "" {
		schedule = s.Contact.ScheduleDate
	}

	contactInfo := map[string]any{
		"leadScore":    s.Lead.Score,
		"leadLevel":    string(s.SignalLevel),
		"consentGiven": s.ConsentGiven,
	}
	for k, v := range map[string]string{
		"name":              s.Contact.Name,
		"email":             s.Contact.Email,
		"phone":             s.Contact.Phone,
		"preferredContact":  s.Contact.PreferredContact,
		"schedule":          schedule,
		"conversationBrief": s.Summary,
	} {
		if v != "" {
			contactInfo[k] = v
		}
	}

	return notifications.SessionPayload{
		SessionID:       s.ID,
		Date:            now.Format(time.RFC3339),
		DurationSeconds: int(s.Duration().Seconds()),
		Transcript:      transcript,
		ContactInfo:     contactInfo,
	}
}

// buildStoredPayload is the persisted-session counterpart of
// buildSessionPayload, used for crash recovery.
func buildStoredPayload(c store.ChatSession, turns []store.SessionTurn, now time.Time) notifications.SessionPayload {
	transcript := make([]notifications.TranscriptEntry, 0, len(turns))
	for _, t := range turns {
		transcript = append(transcript, notifications.TranscriptEntry{Role: t.Role, Content: t.Content})
	}

	schedule := ""
	if c.ScheduleDate != nil {
		schedule = *c.ScheduleDate
		if c.ScheduleTime != nil {
			schedule += " um " + *c.ScheduleTime
		}
	}

	contactInfo := map[string]any{
		"leadScore":    c.LeadScore,
		"leadLevel":    c.SignalLevel,
		"consentGiven": c.ConsentGiven,
	}
	for k, v := range map[string]*string{
		"name":              c.Name,
		"email":             c.Email,
		"phone":             c.Phone,
		"preferredContact":  c.PreferredContact,
		"conversationBrief": c.Summary,
	} {
		if v != nil && *v != "" {
			contactInfo[k] = *v
		}
	}
	if schedule != "" {
		contactInfo["schedule"] = schedule
	}

	return notifications.SessionPayload{
		SessionID:       c.ID,
		Date:            now.Format(time.RFC3339),
		DurationSeconds: int(c.LastActivityAt.Sub(c.StartedAt).Seconds()),
		Transcript:      transcript,
		ContactInfo:     contactInfo,
	}
}
