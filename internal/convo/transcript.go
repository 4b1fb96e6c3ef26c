package convo

import (
	"fmt"
	"strings"
)

const (
	transcriptRule = "=================================================="
	summaryRule    = "--------------------------------------------------"
	userLabel      = "[USER]:"
	agentLabel     = "[LENA]:"
	emptyValue     = "—"
)

// RenderTranscript produces the plain-text conversation record: the
// dialogue with searched treatments inlined after the message that
// triggered them, then the contact block and the AI summary when
// present. The same text goes into summary emails and the session
// archive.
func RenderTranscript(s *Session) string {
	var b strings.Builder

	b.WriteString(transcriptRule + "\n")
	b.WriteString("CONVERSATION HISTORY\n")
	b.WriteString("Date: " + s.CreatedAt.Format("02.01.2006 15:04:05") + "\n")
	b.WriteString(transcriptRule + "\n\n")
	b.WriteString("--- Transcript ---\n\n")

	// Searches keyed by the user message they followed.
	searchesAfter := map[int][]SearchRecord{}
	for _, rec := range s.Searches {
		if len(rec.Results) > 0 {
			searchesAfter[rec.AfterUserMsg] = append(searchesAfter[rec.AfterUserMsg], rec)
		}
	}

	userMsgCount := 0
	for _, turn := range s.Transcript {
		text := strings.TrimSpace(turn.Content)
		if text == "" {
			continue
		}
		if turn.Role == "user" {
			userMsgCount++
			b.WriteString(userLabel + " " + text + "\n")
			for _, rec := range searchesAfter[userMsgCount] {
				b.WriteString("\n")
				fmt.Fprintf(&b, "  [Search #%d — %d Behandlung(en) found]\n", rec.Number, len(rec.Results))
				for i, r := range rec.Results {
					fmt.Fprintf(&b, "  %d. %s — %s\n", i+1, r.Treatment.Name, r.Treatment.Category)
				}
				b.WriteString("\n")
			}
		} else {
			b.WriteString(agentLabel + " " + text + "\n")
		}
	}

	if hasContactData(s) {
		b.WriteString("\n--- Contact Info ---\n\n")
		b.WriteString("Name: " + orEmpty(s.Contact.Name) + "\n")
		b.WriteString("Email: " + orEmpty(s.Contact.Email) + "\n")
		b.WriteString("Phone: " + orEmpty(s.Contact.Phone) + "\n")
		schedule := orEmpty(s.Contact.ScheduleDate)
		if s.Contact.ScheduleTime != "" {
			schedule += " um " + s.Contact.ScheduleTime
		}
		b.WriteString("Schedule: " + schedule + "\n")
		b.WriteString("Preferred Contact: " + orEmpty(s.Contact.PreferredContact) + "\n")
		fmt.Fprintf(&b, "Lead Score: %.1f/10 (%s)\n", s.Lead.Score, s.SignalLevel)
		b.WriteString("Consent: " + yesNo(s.ConsentGiven) + "\n")
	}

	if s.Summary != "" {
		b.WriteString("\n" + summaryRule + "\n")
		b.WriteString("AI Summary:\n")
		b.WriteString(s.Summary + "\n")
	}

	b.WriteString("\n" + transcriptRule + "\n")
	return b.String()
}

func hasContactData(s *Session) bool {
	return s.Contact.Name != "" || s.Contact.Email != "" || s.Contact.Phone != "" ||
		s.Contact.ScheduleDate != "" || s.Contact.ScheduleTime != ""
}

func orEmpty(v string) string {
	if v == "" {
		return emptyValue
	}
	return v
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
