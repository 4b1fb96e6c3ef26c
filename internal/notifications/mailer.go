package notifications

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

const (
	mailRetries = 3

	headerRule  = "═══════════════════════════════════════════════════"
	sectionRule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

	notProvided = "Nicht angegeben"
)

// MailerConfig holds SMTP configuration for outgoing email
type MailerConfig struct {
	Host        string // SMTP host
	Port        int    // SMTP port (587 for STARTTLS)
	Username    string
	Password    string
	From        string // Sender address
	StudioEmail string // Studio inbox for lead notifications and digests
	CompanyName string // Display name used in email bodies
	Closing     string // Signature appended to customer-facing emails
}

// Mailer sends transactional email via SMTP
type Mailer struct {
	cfg    MailerConfig
	logger *log.Logger
	mu     sync.Mutex

	// sendFunc is swapped in tests
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a new mailer
func NewMailer(cfg MailerConfig, logger *log.Logger) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		logger.Println("Mailer: missing SMTP configuration, email notifications disabled")
		return nil, nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Closing == "" {
		cfg.Closing = "Mit freundlichen Grüßen,\nIhr Beauty Lounge Team\nwww.beauty-lounge-warendorf.de"
	}

	logger.Printf("Mailer: client initialized (host=%s, from=%s)", cfg.Host, cfg.From)

	return &Mailer{
		cfg:      cfg,
		logger:   logger,
		sendFunc: smtp.SendMail,
	}, nil
}

// send delivers one message with retry. Attempt N sleeps N seconds before
// retrying.
func (m *Mailer) send(recipient, subject, body string) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		m.cfg.From, recipient, subject, body,
	))

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var lastErr error
	for attempt := 1; attempt <= mailRetries; attempt++ {
		lastErr = m.sendFunc(addr, auth, m.cfg.From, []string{recipient}, msg)
		if lastErr == nil {
			m.logger.Printf("Mailer: sent %q to %s", subject, recipient)
			return nil
		}
		m.logger.Printf("Mailer: attempt %d/%d to %s failed: %v", attempt, mailRetries, recipient, lastErr)
		if attempt < mailRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("send to %s failed after %d attempts: %w", recipient, mailRetries, lastErr)
}

// LeadNotification is the staff-facing lead email content
type LeadNotification struct {
	Name           string
	Phone          string
	Email          string
	ScheduleDate   string
	ScheduleTime   string
	PurchaseTiming string
	NextStep       string
	Reachability   string
	Score          float64
	Treatments     []string // "Name — Category" lines
}

// SendLeadNotification mails a qualified lead to the studio inbox.
func (m *Mailer) SendLeadNotification(n LeadNotification) error {
	if m == nil {
		return nil
	}

	subject := fmt.Sprintf("Neuer Lead: %s - %s", n.Name, orNotProvided(n.PurchaseTiming))

	body := fmt.Sprintf(`%s
                NEUER LEAD - %s
%s

KONTAKTDATEN:
%s
Name:           %s
Telefon:        %s
E-Mail:         %s

TERMIN:
%s
Datum:          %s
Uhrzeit:        %s

QUALIFIZIERUNG:
%s
Gewünschter Behandlungszeitraum: %s
Nächster Schritt: %s
Erreichbarkeit: %s

LEAD BEWERTUNG:
%s
Lead Degree:    %.1f/10

INTERESSIERTE BEHANDLUNGEN:
%s
%s

%s
`,
		headerRule, m.cfg.CompanyName, headerRule,
		sectionRule, n.Name, orNotProvided(n.Phone), orNotProvided(n.Email),
		sectionRule, orNotProvided(n.ScheduleDate), orNotProvided(n.ScheduleTime),
		sectionRule, orNotProvided(n.PurchaseTiming), orNotProvided(n.NextStep), orNotProvided(n.Reachability),
		sectionRule, n.Score,
		sectionRule, treatmentList(n.Treatments),
		headerRule,
	)

	return m.send(m.cfg.StudioEmail, subject, body)
}

// SendSummaryEmail mails the conversation summary to the customer.
func (m *Mailer) SendSummaryEmail(recipient, summary string) error {
	if m == nil {
		return nil
	}

	subject := "Zusammenfassung Ihrer Behandlungssuche"
	body := fmt.Sprintf(`Guten Tag,

vielen Dank für Ihre Anfrage!

Zusammenfassung:
%s

Sollten Sie weitere Fragen haben, kontaktieren Sie uns gerne.

%s
`, summary, m.cfg.Closing)

	return m.send(recipient, subject, body)
}

// SendAppointmentEmail mails an appointment request confirmation to the
// customer.
func (m *Mailer) SendAppointmentEmail(recipient, date, timeOfDay string, treatments []string) error {
	if m == nil {
		return nil
	}

	if date == "" {
		date = "TBD"
	}
	if timeOfDay == "" {
		timeOfDay = "TBD"
	}

	subject := fmt.Sprintf("Beratungstermin - %s um %s Uhr", date, timeOfDay)
	body := fmt.Sprintf(`Guten Tag,

vielen Dank für Ihre Terminanfrage!

TERMINDETAILS:
Datum: %s
Uhrzeit: %s Uhr

Die besprochenen Behandlungen:
%s

Wir melden uns zur Bestätigung des Termins bei Ihnen.

Sollten Sie den Termin nicht wahrnehmen können, informieren Sie uns bitte mindestens 24 Stunden im Voraus.

%s
`, date, timeOfDay, treatmentList(treatments), m.cfg.Closing)

	return m.send(recipient, subject, body)
}

// DigestEntry is one lead line in the daily digest
type DigestEntry struct {
	Name        string
	Score       float64
	SignalLevel string
	Contact     string
	CreatedAt   time.Time
}

// SendDailyDigest mails the day's leads to the studio inbox. Sends nothing
// when there were no leads.
func (m *Mailer) SendDailyDigest(day time.Time, entries []DigestEntry) error {
	if m == nil || len(entries) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Lead-Übersicht %s (%d)", day.Format("02.01.2006"), len(entries))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n                LEAD-ÜBERSICHT - %s\n%s\n\n", headerRule, m.cfg.CompanyName, headerRule)
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s — %.1f/10 (%s)\n   Kontakt: %s\n   Zeit: %s\n\n",
			i+1, e.Name, e.Score, e.SignalLevel, orNotProvided(e.Contact), e.CreatedAt.Format("02.01.2006 15:04"))
	}
	b.WriteString(headerRule + "\n")

	return m.send(m.cfg.StudioEmail, subject, b.String())
}

func treatmentList(treatments []string) string {
	if len(treatments) == 0 {
		return "  Keine Behandlungen ausgewählt"
	}
	lines := make([]string, len(treatments))
	for i, t := range treatments {
		lines[i] = "  - " + t
	}
	return strings.Join(lines, "\n")
}

func orNotProvided(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}
