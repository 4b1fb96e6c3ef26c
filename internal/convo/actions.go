package convo

import (
	"regexp"
	"strings"
)

// The button- and handoff-driven operations below mutate session state
// directly; they are triggered by the API layer, not by classification.

// HandleExpertResponse records the customer's answer to the handoff
// offer. Accepting moves the conversation into contact collection; the
// returned text is a steering message for declines, empty otherwise.
func (e *Engine) HandleExpertResponse(s *Session, accepted bool) string {
	s.ExpertOfferPending = false
	s.ExpertAccepted = accepted
	e.logger.Printf("Convo: session %s expert response accepted=%v", s.ID, accepted)

	bundle := e.locales.Bundle(s.Language)
	if !accepted {
		return bundle.Message("expert_decline")
	}
	if s.Stage == StageGreeting || s.Stage == StageConsultation {
		s.Stage = StageContactCollection
	}
	return ""
}

// SaveContact stores whatever pieces the customer provided. All fields
// are optional; empty strings leave existing values untouched. An
// invalid email is rejected with a re-ask message and nothing else from
// the call is lost.
func (e *Engine) SaveContact(s *Session, name, email, phone, preferred string) string {
	if name = strings.TrimSpace(name); name != "" {
		s.Contact.Name = titleCase(name)
		e.logger.Printf("Convo: session %s saved name", s.ID)
	}
	reask := ""
	if email = strings.TrimSpace(email); email != "" {
		if ValidEmail(email) {
			s.Contact.Email = strings.ToLower(email)
			e.logger.Printf("Convo: session %s saved email", s.ID)
		} else {
			reask = e.locales.Bundle(s.Language).Message("invalid_email")
		}
	}
	if phone = strings.TrimSpace(phone); phone != "" {
		s.Contact.Phone = phone
		e.logger.Printf("Convo: session %s saved phone", s.ID)
	}
	switch preferred {
	case "phone", "whatsapp", "email":
		s.Contact.PreferredContact = preferred
	}

	if s.Stage == StageContactCollection && s.HasContact() {
		s.Stage = StageConsent
	}
	return reask
}

// RecordConsent stores the customer's explicit yes or no on being
// contacted. Consent must be recorded before completion.
func (e *Engine) RecordConsent(s *Session, consent bool) string {
	s.ConsentGiven = consent
	s.ConsentRecorded = true
	e.logger.Printf("Convo: session %s consent=%v", s.ID, consent)
	if !consent {
		return e.locales.Bundle(s.Language).Message("consent_declined")
	}
	return ""
}

// ScheduleAppointment stores the preferred callback slot; both values
// are free text ("morgen", "nachmittags").
func (e *Engine) ScheduleAppointment(s *Session, date, timeOfDay string) {
	s.Contact.ScheduleDate = strings.TrimSpace(date)
	s.Contact.ScheduleTime = strings.TrimSpace(timeOfDay)
	e.logger.Printf("Convo: session %s appointment %s %s", s.ID, s.Contact.ScheduleDate, s.Contact.ScheduleTime)
}

// SaveSummary stores the model's 1-2 sentence conversation summary.
func (e *Engine) SaveSummary(s *Session, summary string) {
	s.Summary = strings.TrimSpace(summary)
}

// RecordQualification stores the three button answers. Unknown values
// are stored as-is; the scorer falls back to defaults for them.
func (e *Engine) RecordQualification(s *Session, timing, nextStep, reachability string) {
	if timing != "" {
		s.Qualification.PurchaseTiming = timing
	}
	if nextStep != "" {
		s.Qualification.NextStep = nextStep
	}
	if reachability != "" {
		s.Qualification.Reachability = reachability
	}
}

// Complete validates that the handoff requirements are met and moves the
// session to the completion stage. A non-empty return lists what is
// still missing, in the order name, contact channel, consent.
func (e *Engine) Complete(s *Session) []string {
	var missing []string
	if s.Contact.Name == "" {
		missing = append(missing, "Name")
	}
	if s.Contact.Email == "" && s.Contact.Phone == "" {
		missing = append(missing, "E-Mail oder Telefon")
	}
	if !s.ConsentRecorded || !s.ConsentGiven {
		missing = append(missing, "Einwilligung zur Kontaktaufnahme")
	}
	if len(missing) > 0 {
		return missing
	}
	s.Stage = StageCompletion
	e.logger.Printf("Convo: session %s completed", s.ID)
	return nil
}

// emailRE covers the local part, the @ and a dotted domain. The length
// limits (254 total, 64 local) are checked separately because RE2 has
// no lookaheads.
var emailRE = regexp.MustCompile(`^[A-Za-z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@(?:[A-Za-z0-9-]+\.)+[A-Za-z]{2,}$`)

// ValidEmail reports whether s is a syntactically plausible address.
func ValidEmail(s string) bool {
	if len(s) == 0 || len(s) > 254 {
		return false
	}
	at := strings.Index(s, "@")
	if at < 1 || at > 64 {
		return false
	}
	return emailRE.MatchString(s)
}

// titleCase uppercases the first letter of each space-separated word,
// enough for names without pulling in a locale-aware caser.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
