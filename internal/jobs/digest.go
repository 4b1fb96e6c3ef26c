package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/florianweber/lena/internal/notifications"
	"github.com/florianweber/lena/internal/store"
)

// DigestJob mails the studio a daily overview of the leads collected in
// the last 24 hours. The schedule is a cron expression, default 07:00.
type DigestJob struct {
	store    *store.Store
	mailer   *notifications.Mailer
	logger   *log.Logger
	schedule string
	cron     *cron.Cron
}

// NewDigestJob creates a new daily digest job.
func NewDigestJob(s *store.Store, mailer *notifications.Mailer, logger *log.Logger, schedule string) *DigestJob {
	if schedule == "" {
		schedule = "0 7 * * *"
	}
	return &DigestJob{
		store:    s,
		mailer:   mailer,
		logger:   logger,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the digest. Without a store there is nothing to digest.
func (j *DigestJob) Start() error {
	if j.store == nil {
		j.logger.Println("DigestJob: no store configured, digest disabled")
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, j.runOnce); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Printf("DigestJob: scheduled (%s)", j.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running digest to finish.
func (j *DigestJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Println("DigestJob: stopped")
}

func (j *DigestJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	leads, err := j.store.ListLeadsCreatedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		j.logger.Printf("DigestJob: failed to list leads: %v", err)
		return
	}
	if len(leads) == 0 {
		j.logger.Println("DigestJob: no leads in the last 24h, skipping")
		return
	}

	if err := j.mailer.SendDailyDigest(now, digestEntries(leads)); err != nil {
		j.logger.Printf("DigestJob: failed to send digest: %v", err)
		return
	}
	j.logger.Printf("DigestJob: sent digest with %d leads", len(leads))
}

func digestEntries(leads []store.Lead) []notifications.DigestEntry {
	entries := make([]notifications.DigestEntry, 0, len(leads))
	for _, l := range leads {
		contact := ""
		if l.Email != nil {
			contact = *l.Email
		} else if l.Phone != nil {
			contact = *l.Phone
		}
		entries = append(entries, notifications.DigestEntry{
			Name:        l.Name,
			Score:       l.Score,
			SignalLevel: l.SignalLevel,
			Contact:     contact,
			CreatedAt:   l.CreatedAt,
		})
	}
	return entries
}
