package convo

import (
	"strings"
	"testing"
)

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"anna.schmidt@example.de", true},
		{"a@b.co", true},
		{"kunde+newsletter@mail.example.com", true},
		{"", false},
		{"ohne-at.example.de", false},
		{"@example.de", false},
		{"anna@", false},
		{"anna@example", false},
		{"anna schmidt@example.de", false},
		{strings.Repeat("a", 65) + "@example.de", false},
		{strings.Repeat("a", 64) + "@example.de", true},
		{"a@" + strings.Repeat("b", 250) + ".de", false},
	}

	for _, tt := range tests {
		if got := ValidEmail(tt.email); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestSaveContact(t *testing.T) {
	eng := newTestEngine(t, nil)

	t.Run("name is title-cased", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		eng.SaveContact(s, "anna schmidt", "", "", "")
		if s.Contact.Name != "Anna Schmidt" {
			t.Errorf("name = %q", s.Contact.Name)
		}
	})

	t.Run("invalid email triggers re-ask and keeps the rest", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		reask := eng.SaveContact(s, "Anna", "keine-email", "0251 12345", "")
		if reask == "" {
			t.Fatal("expected a re-ask message for the invalid email")
		}
		if s.Contact.Email != "" {
			t.Error("invalid email must not be stored")
		}
		if s.Contact.Name != "Anna" || s.Contact.Phone != "0251 12345" {
			t.Error("name and phone should be saved despite the bad email")
		}
	})

	t.Run("email lowercased", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		if reask := eng.SaveContact(s, "", "Anna.Schmidt@Example.DE", "", ""); reask != "" {
			t.Fatalf("unexpected re-ask: %q", reask)
		}
		if s.Contact.Email != "anna.schmidt@example.de" {
			t.Errorf("email = %q", s.Contact.Email)
		}
	})

	t.Run("preferred contact validated", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		eng.SaveContact(s, "", "", "", "whatsapp")
		eng.SaveContact(s, "", "", "", "brieftaube")
		if s.Contact.PreferredContact != "whatsapp" {
			t.Errorf("preferred = %q", s.Contact.PreferredContact)
		}
	})

	t.Run("stage moves to consent once contact is complete", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		s.Stage = StageContactCollection
		eng.SaveContact(s, "Anna Schmidt", "", "", "")
		if s.Stage != StageContactCollection {
			t.Fatal("name alone should not complete contact collection")
		}
		eng.SaveContact(s, "", "anna@example.de", "", "")
		if s.Stage != StageConsent {
			t.Errorf("stage = %s, want consent", s.Stage)
		}
	})
}

func TestHandleExpertResponse(t *testing.T) {
	eng := newTestEngine(t, nil)

	t.Run("accept moves to contact collection", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		s.Stage = StageConsultation
		s.ExpertOfferPending = true
		msg := eng.HandleExpertResponse(s, true)
		if msg != "" {
			t.Errorf("unexpected steering message %q", msg)
		}
		if !s.ExpertAccepted || s.ExpertOfferPending {
			t.Error("accept should set accepted and clear pending")
		}
		if s.Stage != StageContactCollection {
			t.Errorf("stage = %s, want contact_collection", s.Stage)
		}
	})

	t.Run("decline keeps consulting", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		s.Stage = StageConsultation
		s.ExpertOfferPending = true
		msg := eng.HandleExpertResponse(s, false)
		if !strings.Contains(msg, "Kein Problem") {
			t.Errorf("decline message = %q", msg)
		}
		if s.ExpertAccepted || s.Stage != StageConsultation {
			t.Error("decline must not change acceptance or stage")
		}
	})
}

func TestRecordConsent(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := eng.NewSession("s1", "de")

	if msg := eng.RecordConsent(s, true); msg != "" {
		t.Errorf("unexpected message on consent: %q", msg)
	}
	if !s.ConsentGiven || !s.ConsentRecorded {
		t.Error("consent should be recorded")
	}

	s2 := eng.NewSession("s2", "de")
	msg := eng.RecordConsent(s2, false)
	if !strings.Contains(msg, "geben nichts weiter") {
		t.Errorf("decline message = %q", msg)
	}
	if s2.ConsentGiven {
		t.Error("declined consent must be stored as false")
	}
}

func TestComplete(t *testing.T) {
	eng := newTestEngine(t, nil)

	t.Run("reports missing pieces in order", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		missing := eng.Complete(s)
		want := []string{"Name", "E-Mail oder Telefon", "Einwilligung zur Kontaktaufnahme"}
		if len(missing) != len(want) {
			t.Fatalf("missing = %v", missing)
		}
		for i := range want {
			if missing[i] != want[i] {
				t.Errorf("missing[%d] = %q, want %q", i, missing[i], want[i])
			}
		}
		if s.Stage == StageCompletion {
			t.Error("incomplete session must not reach completion")
		}
	})

	t.Run("phone suffices as channel", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		eng.SaveContact(s, "Anna Schmidt", "", "0251 12345", "phone")
		eng.RecordConsent(s, true)
		if missing := eng.Complete(s); missing != nil {
			t.Fatalf("missing = %v, want none", missing)
		}
		if s.Stage != StageCompletion {
			t.Errorf("stage = %s, want completion", s.Stage)
		}
	})

	t.Run("declined consent blocks completion", func(t *testing.T) {
		s := eng.NewSession("s1", "de")
		eng.SaveContact(s, "Anna Schmidt", "anna@example.de", "", "")
		eng.RecordConsent(s, false)
		missing := eng.Complete(s)
		if len(missing) != 1 || missing[0] != "Einwilligung zur Kontaktaufnahme" {
			t.Errorf("missing = %v", missing)
		}
	})
}

func TestScheduleAndSummary(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := eng.NewSession("s1", "de")

	eng.ScheduleAppointment(s, " 20.02.2026 ", " nachmittags ")
	if s.Contact.ScheduleDate != "20.02.2026" || s.Contact.ScheduleTime != "nachmittags" {
		t.Errorf("schedule = %q %q", s.Contact.ScheduleDate, s.Contact.ScheduleTime)
	}

	eng.SaveSummary(s, " Kundin interessiert sich für Permanent Make-Up. ")
	if s.Summary != "Kundin interessiert sich für Permanent Make-Up." {
		t.Errorf("summary = %q", s.Summary)
	}
}

func TestRecordQualification(t *testing.T) {
	eng := newTestEngine(t, nil)
	s := eng.NewSession("s1", "de")

	eng.RecordQualification(s, "immediately", "demo", "")
	eng.RecordQualification(s, "", "", "phone_today")
	if s.Qualification.PurchaseTiming != "immediately" ||
		s.Qualification.NextStep != "demo" ||
		s.Qualification.Reachability != "phone_today" {
		t.Errorf("qualification = %+v", s.Qualification)
	}
}
