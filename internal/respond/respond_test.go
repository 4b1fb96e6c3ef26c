package respond

import (
	"strings"
	"testing"

	"github.com/florianweber/lena/internal/filters"
	"github.com/florianweber/lena/internal/locale"
	"github.com/florianweber/lena/internal/rules"
	"github.com/florianweber/lena/internal/scoring"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	rs, err := rules.Default()
	if err != nil {
		t.Fatalf("rules.Default() failed: %v", err)
	}
	cat, err := locale.Default()
	if err != nil {
		t.Fatalf("locale.Default() failed: %v", err)
	}
	return NewBuilder(DefaultPersona(), cat.Bundle("de"), rs.Behavior)
}

func TestPrompt_SubstitutesPersonaAndVars(t *testing.T) {
	b := newBuilder(t)

	got := b.Prompt("typo_clarify", PromptVars{Original: "masage", Corrected: "massage"})

	if strings.Contains(got, "{") && strings.Contains(got, "{base}") {
		t.Error("unsubstituted {base} placeholder left in prompt")
	}
	for _, want := range []string{"Lena", "Beauty Lounge Warendorf", "masage", "massage", "Max 30 Worte"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestPrompt_UnknownKeyFallsBackToDefault(t *testing.T) {
	b := newBuilder(t)

	got := b.Prompt("nonexistent", PromptVars{})
	if !strings.Contains(got, "Max 40 Worte") {
		t.Errorf("default prompt should carry the default word limit:\n%s", got)
	}
}

func TestWordLimit(t *testing.T) {
	if WordLimit("off_topic") != 15 {
		t.Errorf("off_topic limit = %d, want 15", WordLimit("off_topic"))
	}
	if WordLimit("never_heard_of") != 40 {
		t.Errorf("unknown key limit = %d, want default 40", WordLimit("never_heard_of"))
	}
}

func TestLeadInstruction_Branches(t *testing.T) {
	b := newBuilder(t)
	phrase := "Unsere Kosmetikerin kann Ihnen alle Details klären – möchten Sie, dass sie Sie kontaktiert?"

	tests := []struct {
		name           string
		level          scoring.SignalLevel
		canOffer       bool
		accepted       bool
		wantContains   string
		wantPhraseUsed bool
	}{
		{name: "accepted suppresses offers", level: scoring.SignalHot, canOffer: true, accepted: true, wantContains: "BEREITS ANGENOMMEN"},
		{name: "hot with expert", level: scoring.SignalHot, canOffer: true, wantContains: "HOT", wantPhraseUsed: true},
		{name: "hot without expert", level: scoring.SignalHot, wantContains: "KEIN Expertenangebot"},
		{name: "warm with expert", level: scoring.SignalWarm, canOffer: true, wantContains: "WARM", wantPhraseUsed: true},
		{name: "cool never offers", level: scoring.SignalCool, canOffer: true, wantContains: "COOL"},
		{name: "mild with expert", level: scoring.SignalMild, canOffer: true, wantContains: "MILD", wantPhraseUsed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.LeadInstruction(tt.level, tt.canOffer, phrase, tt.accepted)
			if !strings.Contains(got, tt.wantContains) {
				t.Errorf("instruction missing %q:\n%s", tt.wantContains, got)
			}
			if tt.wantPhraseUsed != strings.Contains(got, phrase) {
				t.Errorf("phrase used = %v, want %v", strings.Contains(got, phrase), tt.wantPhraseUsed)
			}
			if strings.Contains(got, "{expert_phrase}") {
				t.Error("unsubstituted expert phrase placeholder")
			}
		})
	}
}

func TestExpertOfferPhrase_ContextSelection(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		name     string
		level    scoring.SignalLevel
		triggers []string
		want     string
	}{
		{name: "price trigger", level: scoring.SignalHot, triggers: []string{"preis"}, want: "Preisdetails"},
		{name: "availability trigger", level: scoring.SignalHot, triggers: []string{"termin"}, want: "freien Termine"},
		{name: "consultation trigger", level: scoring.SignalHot, triggers: []string{"beratung"}, want: "Beratungstermin"},
		{name: "generic hot", level: scoring.SignalHot, want: "alle Details klären"},
		{name: "warm rotates list", level: scoring.SignalWarm, want: "möchten Sie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.ExpertOfferPhrase(tt.level, 0, MatchInfo{}, tt.triggers)
			if !strings.Contains(got, tt.want) {
				t.Errorf("phrase = %q, want it to contain %q", got, tt.want)
			}
			if !strings.Contains(got, "möchten Sie") {
				t.Errorf("phrase must end with the Ja/Nein question: %q", got)
			}
		})
	}
}

func TestExpertOfferPhrase_CoolGetsNothing(t *testing.T) {
	b := newBuilder(t)
	if got := b.ExpertOfferPhrase(scoring.SignalCool, 0, MatchInfo{}, nil); got != "" {
		t.Errorf("cool signal phrase = %q, want empty", got)
	}
}

func TestExpertOfferPhrase_Rotation(t *testing.T) {
	b := newBuilder(t)

	first := b.ExpertOfferPhrase(scoring.SignalHot, 0, MatchInfo{}, []string{"preis"})
	second := b.ExpertOfferPhrase(scoring.SignalHot, 1, MatchInfo{}, []string{"preis"})
	third := b.ExpertOfferPhrase(scoring.SignalHot, 2, MatchInfo{}, []string{"preis"})

	if first == second {
		t.Error("consecutive offers should rotate the phrase list")
	}
	if first != third {
		t.Error("rotation should wrap around the list")
	}
}

func TestExpertOfferPhrase_MismatchContextWins(t *testing.T) {
	b := newBuilder(t)

	got := b.ExpertOfferPhrase(scoring.SignalHot, 0, MatchInfo{
		ShowingAlternatives: true,
		Unmatched:           []string{"treatment_category"},
	}, []string{"preis"})

	if !strings.Contains(got, "Nicht alle Kriterien") {
		t.Errorf("phrase = %q, want the mismatch wording", got)
	}
}

func TestBudgetInstruction_Policy(t *testing.T) {
	b := newBuilder(t)

	t.Run("soft ask at the configured response", func(t *testing.T) {
		p := filters.NewPreferences()
		state := &BudgetState{}

		if got := b.BudgetInstruction(p, state, 1); got != "" {
			t.Errorf("response 1 = %q, want no injection", got)
		}
		got := b.BudgetInstruction(p, state, 2)
		if !strings.Contains(got, "beiläufig") {
			t.Errorf("response 2 = %q, want the soft injection", got)
		}
		if !state.Asked {
			t.Error("state should record that the question was asked")
		}
		if got := b.BudgetInstruction(p, state, 3); got != "" {
			t.Errorf("after asking = %q, want nothing further", got)
		}
	})

	t.Run("forced ask once overdue", func(t *testing.T) {
		p := filters.NewPreferences()
		state := &BudgetState{}

		got := b.BudgetInstruction(p, state, 3)
		if !strings.Contains(got, "PFLICHT") {
			t.Errorf("response 3 = %q, want the forced injection", got)
		}
	})

	t.Run("known budget suppresses the question", func(t *testing.T) {
		p := filters.NewPreferences()
		p.Numeric["max_price"] = 120
		state := &BudgetState{}

		if got := b.BudgetInstruction(p, state, 3); got != "" {
			t.Errorf("with budget = %q, want nothing", got)
		}
	})
}

func TestSearchResponse_AssemblesBlocks(t *testing.T) {
	b := newBuilder(t)

	got := b.SearchResponse(SearchContext{
		Filters:           map[string]any{"treatment_category": "Gesicht"},
		SignalLevel:       scoring.SignalWarm,
		SearchNumber:      2,
		MatchStatus:       "full",
		LeadInstruction:   "LEAD-BLOCK",
		BudgetInstruction: "BUDGET-BLOCK",
	})

	for _, want := range []string{"keine Treffer", "treatment_category", "Suche Nr. 2", "LEAD-BLOCK", "BUDGET-BLOCK", "IMPORTANT FOR NATURAL CONVERSATION"} {
		if !strings.Contains(got, want) {
			t.Errorf("search response missing %q", want)
		}
	}
}
