// Package convo holds conversation state and the per-turn pipeline that
// wires classification, filter tracking, catalog search, signal detection,
// lead scoring and prompt assembly into a single message loop.
package convo

import (
	"time"

	"github.com/florianweber/lena/internal/catalog"
	"github.com/florianweber/lena/internal/filters"
	"github.com/florianweber/lena/internal/llm"
	"github.com/florianweber/lena/internal/respond"
	"github.com/florianweber/lena/internal/scoring"
)

// Stage is the coarse conversation phase. Transitions only move forward:
// greeting → consultation → contact_collection → consent → completion.
type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageConsultation      Stage = "consultation"
	StageContactCollection Stage = "contact_collection"
	StageConsent           Stage = "consent"
	StageCompletion        Stage = "completion"
)

// Turn is one transcript entry.
type Turn struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Contact holds whatever the customer has shared so far. Fields fill in
// incrementally; empty string means not provided yet.
type Contact struct {
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	PreferredContact string `json:"preferred_contact,omitempty"` // phone, whatsapp, email
	ScheduleDate     string `json:"schedule_date,omitempty"`
	ScheduleTime     string `json:"schedule_time,omitempty"`
}

// SearchRecord remembers one catalog search so the transcript can show
// which treatments were presented after which customer message.
type SearchRecord struct {
	Number       int              `json:"number"`
	AfterUserMsg int              `json:"after_user_msg"`
	Results      []catalog.Result `json:"results"`
}

// Qualification holds the three button answers from the frontend.
type Qualification struct {
	PurchaseTiming string `json:"purchase_timing,omitempty"` // immediately, 2_4_weeks, later
	NextStep       string `json:"next_step,omitempty"`       // demo, price_details, keep_browsing
	Reachability   string `json:"reachability,omitempty"`    // phone_today, whatsapp_today, email_week
}

// Session is the full mutable state of one conversation. It is not safe
// for concurrent use; callers serialize access per session.
type Session struct {
	ID           string     `json:"id"`
	Language     string     `json:"language"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Stage        Stage      `json:"stage"`

	Prefs  *filters.Preferences `json:"-"`
	Budget respond.BudgetState  `json:"budget"`

	UserMsgCount   int `json:"user_msg_count"`
	ResponseCount  int `json:"response_count"`
	SearchCount    int `json:"search_count"`
	TreatmentsSeen int `json:"treatments_seen"`

	// Cumulative signal counts across all turns; the lead score works on
	// totals, not on the latest message alone.
	HotCount  int `json:"hot_count"`
	WarmCount int `json:"warm_count"`
	CoolCount int `json:"cool_count"`

	SignalLevel scoring.SignalLevel `json:"signal_level"`
	Lead        scoring.LeadDegree  `json:"lead"`

	ExpertOfferCount   int  `json:"expert_offer_count"`
	ExpertOfferPending bool `json:"expert_offer_pending"`
	ExpertOffered      bool `json:"expert_offered"`
	ExpertAccepted     bool `json:"expert_accepted"`
	lastOfferSearch    int

	Contact         Contact       `json:"contact"`
	Qualification   Qualification `json:"qualification"`
	ConsentGiven    bool          `json:"consent_given"`
	ConsentRecorded bool          `json:"consent_recorded"`
	Summary         string        `json:"summary,omitempty"`

	Transcript []Turn           `json:"transcript"`
	Searches   []SearchRecord   `json:"searches"`
	LastSearch []catalog.Result `json:"-"`

	Usage llm.Usage `json:"usage"`

	lastValidation filters.ValidationResult
}

// NewSession creates an empty session in the greeting stage.
func NewSession(id, language string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Language:     language,
		CreatedAt:    now,
		LastActivity: now,
		Stage:        StageGreeting,
		SignalLevel:  scoring.SignalMild,
		Prefs:        filters.NewPreferences(),
	}
}

// Duration reports how long the session has been active.
func (s *Session) Duration() time.Duration {
	return s.LastActivity.Sub(s.CreatedAt)
}

// HasContact reports whether enough contact data exists for a handoff:
// a name plus at least one of email or phone.
func (s *Session) HasContact() bool {
	return s.Contact.Name != "" && (s.Contact.Email != "" || s.Contact.Phone != "")
}
