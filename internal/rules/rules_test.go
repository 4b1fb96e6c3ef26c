package rules

import (
	"strings"
	"testing"
)

func TestDefault_LoadsAndValidates(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	if len(rs.Signals.Hot) == 0 {
		t.Error("hot signal list should not be empty")
	}
	if rs.Signals.Scoring.HotBase != 0.7 {
		t.Errorf("hot_base = %v, want 0.7", rs.Signals.Scoring.HotBase)
	}
	if rs.Lead.TimingScores["immediately"] != 1.5 {
		t.Errorf("timing immediately = %v, want 1.5", rs.Lead.TimingScores["immediately"])
	}
	if got := rs.Classifier.Confidence["greeting"]; got != 0.95 {
		t.Errorf("greeting confidence = %v, want 0.95", got)
	}
	if rs.Behavior.SearchTopK != 5 {
		t.Errorf("search_top_k = %v, want 5", rs.Behavior.SearchTopK)
	}
}

func TestDefault_FieldGroups(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	cats := rs.Filters.CategoricalFields()
	for _, want := range []string{"treatment_category", "skin_type", "method", "model_name", "first_time_suitable"} {
		if !cats[want] {
			t.Errorf("categorical fields missing %q", want)
		}
	}

	nums := rs.Filters.NumericFields()
	for _, want := range []string{"duration_min", "duration_max", "max_price", "min_price"} {
		if !nums[want] {
			t.Errorf("numeric fields missing %q", want)
		}
	}
}

func TestDefault_AliasTargetsAllowed(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	// facial is the documented alias for the Gesicht category.
	cat := rs.Filters.Categorical["treatment_category"]
	if got := cat.Aliases["facial"]; got != "Gesicht" {
		t.Errorf("alias facial = %q, want Gesicht", got)
	}
}

func TestValidate_RejectsBadAliasTarget(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	cat := rs.Filters.Categorical["skin_type"]
	cat.Aliases["glossy"] = "Glänzend" // not an allowed value
	rs.Filters.Categorical["skin_type"] = cat

	err = rs.Validate()
	if err == nil {
		t.Fatal("expected validation error for alias pointing outside allowed set")
	}
	if !strings.Contains(err.Error(), "glossy") {
		t.Errorf("error should name the bad alias, got: %v", err)
	}
}

func TestValidate_RejectsBadPattern(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	rs.Classifier.Patterns[PatternGreeting] = append(rs.Classifier.Patterns[PatternGreeting], "(unclosed")
	if err := rs.Validate(); err == nil {
		t.Error("expected validation error for uncompilable pattern")
	}
}

func TestValidate_RejectsInvertedBounds(t *testing.T) {
	rs, err := Default()
	if err != nil {
		t.Fatalf("Default() failed: %v", err)
	}

	lo, hi := 100.0, 20.0
	rs.Filters.NumericBounds["duration_min"] = NumericBounds{Min: &lo, Max: &hi}
	if err := rs.Validate(); err == nil {
		t.Error("expected validation error for min > max")
	}
}

func TestBoundsFor_MinPrefixRule(t *testing.T) {
	min := 1.0
	f := FilterRules{
		Fields: map[string]FieldDef{
			"min_rating": {Group: GroupNumericRange, DisplayName: "Min Rating"},
		},
		MinPrefixBounds: &NumericBounds{Min: &min},
	}

	b := f.BoundsFor("min_rating")
	if b.Min == nil || *b.Min != 1.0 {
		t.Errorf("min_ prefix rule not applied: %+v", b)
	}
	if b.Max != nil {
		t.Errorf("max should stay unset, got %v", *b.Max)
	}
}
