package rules

import (
	"fmt"
	"regexp"
)

// Pattern groups the classifier requires at startup.
var requiredPatternGroups = []string{
	PatternGreeting, PatternBuying, PatternVague, PatternGratitude,
	PatternOffTopic, PatternPrice, PatternSpecific,
}

// Confidence keys the classifier reads.
var requiredConfidenceKeys = []string{
	"greeting", "buying_signal", "gratitude", "price_inquiry",
	"clarification", "typo_query", "off_topic", "vague_pattern",
	"vague_short", "default",
}

// Validate checks the ruleset for internal consistency. It is called once
// at startup; a failure here is fatal so the core never runs on a broken
// table.
func (rs *Ruleset) Validate() error {
	if err := rs.Signals.validate(); err != nil {
		return fmt.Errorf("signals: %w", err)
	}
	if err := rs.Lead.validate(); err != nil {
		return fmt.Errorf("lead: %w", err)
	}
	if err := rs.Classifier.validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := rs.Filters.validate(); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	if err := rs.Reset.validate(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := rs.Behavior.validate(); err != nil {
		return fmt.Errorf("behavior: %w", err)
	}
	return nil
}

func (s *SignalRules) validate() error {
	if len(s.Hot) == 0 || len(s.Warm) == 0 || len(s.Cool) == 0 {
		return fmt.Errorf("hot/warm/cool keyword lists must all be non-empty")
	}
	sc := s.Scoring
	for name, v := range map[string]float64{
		"hot_base":        sc.HotBase,
		"warm_base":       sc.WarmBase,
		"cool_confidence": sc.CoolConfidence,
		"mild_base":       sc.MildBase,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0,1], got %v", name, v)
		}
	}
	if sc.HotIncrement < 0 || sc.WarmIncrement < 0 || sc.WarmSearchIncrement < 0 || sc.MildSearchIncrement < 0 {
		return fmt.Errorf("increments must not be negative")
	}
	return nil
}

func (l *LeadRules) validate() error {
	if l.HotWeight <= 0 || l.WarmWeight <= 0 {
		return fmt.Errorf("hot_weight and warm_weight must be positive")
	}
	if l.CoolPenalty > 0 {
		return fmt.Errorf("cool_penalty must be zero or negative, got %v", l.CoolPenalty)
	}
	if l.IntentConfidenceDivisor <= 0 {
		return fmt.Errorf("intent_confidence_divisor must be positive")
	}
	if len(l.TimingScores) == 0 || len(l.StepScores) == 0 || len(l.ReachScores) == 0 {
		return fmt.Errorf("timing_scores, step_scores and reach_scores must be non-empty")
	}
	for i, r := range l.SynergyRules {
		if r.Timing == "" || r.Step == "" {
			return fmt.Errorf("synergy rule %d has empty timing or step", i)
		}
		if _, ok := l.TimingScores[r.Timing]; !ok {
			return fmt.Errorf("synergy rule %d references unknown timing %q", i, r.Timing)
		}
		if _, ok := l.StepScores[r.Step]; !ok {
			return fmt.Errorf("synergy rule %d references unknown step %q", i, r.Step)
		}
	}
	if l.BaseConfidence <= 0 || l.BaseConfidence > 1 {
		return fmt.Errorf("base_confidence must be in (0,1], got %v", l.BaseConfidence)
	}
	return nil
}

func (c *ClassifierRules) validate() error {
	for _, group := range requiredPatternGroups {
		pats, ok := c.Patterns[group]
		if !ok || len(pats) == 0 {
			return fmt.Errorf("pattern group %q missing or empty", group)
		}
	}
	for group, pats := range c.Patterns {
		for _, p := range pats {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return fmt.Errorf("pattern group %q: %q does not compile: %w", group, p, err)
			}
		}
	}
	for _, key := range requiredConfidenceKeys {
		v, ok := c.Confidence[key]
		if !ok {
			return fmt.Errorf("confidence key %q missing", key)
		}
		if v <= 0 || v > 1 {
			return fmt.Errorf("confidence %q must be in (0,1], got %v", key, v)
		}
	}
	if len(c.DomainKeywords) == 0 {
		return fmt.Errorf("domain_keywords must be non-empty")
	}
	for typo, fix := range c.TypoCorrections {
		if typo == "" || fix == "" {
			return fmt.Errorf("typo correction %q -> %q has an empty side", typo, fix)
		}
	}
	return nil
}

func (f *FilterRules) validate() error {
	if len(f.Fields) == 0 {
		return fmt.Errorf("no fields defined")
	}
	for name, def := range f.Fields {
		switch def.Group {
		case GroupCategorical, GroupNumericRange, GroupBinaryFeature, GroupUsageTag, GroupModeTag:
		default:
			return fmt.Errorf("field %q has unknown group %q", name, def.Group)
		}
	}

	for field, cat := range f.Categorical {
		def, ok := f.Fields[field]
		if !ok {
			return fmt.Errorf("categorical_values entry %q is not a defined field", field)
		}
		if def.Group != GroupCategorical {
			return fmt.Errorf("categorical_values entry %q is not in the categorical group", field)
		}
		// Every alias must point at an allowed value, otherwise validation
		// would admit values the search layer cannot match.
		if len(cat.Allowed) > 0 {
			allowed := make(map[string]bool, len(cat.Allowed))
			for _, v := range cat.Allowed {
				allowed[v] = true
			}
			for alias, target := range cat.Aliases {
				if !allowed[target] {
					return fmt.Errorf("field %q: alias %q -> %q is not an allowed value", field, alias, target)
				}
			}
		}
	}

	for field, b := range f.NumericBounds {
		def, ok := f.Fields[field]
		if !ok {
			return fmt.Errorf("numeric_bounds entry %q is not a defined field", field)
		}
		if def.Group != GroupNumericRange {
			return fmt.Errorf("numeric_bounds entry %q is not in the numeric_range group", field)
		}
		if b.Min != nil && b.Max != nil && *b.Min > *b.Max {
			return fmt.Errorf("field %q: min %v exceeds max %v", field, *b.Min, *b.Max)
		}
	}

	for i, m := range f.ImplicitMappings {
		if len(m.Phrases) == 0 || len(m.Filters) == 0 {
			return fmt.Errorf("implicit mapping %d has empty phrases or filters", i)
		}
		for field := range m.Filters {
			if _, ok := f.Fields[field]; !ok {
				return fmt.Errorf("implicit mapping %d references unknown field %q", i, field)
			}
		}
	}

	if len(f.Truthy) == 0 || len(f.Falsy) == 0 {
		return fmt.Errorf("truthy and falsy vocab must be non-empty")
	}
	return nil
}

func (r *ResetRules) validate() error {
	if len(r.FullPhrases) == 0 || len(r.PricePhrases) == 0 || len(r.Triggers) == 0 {
		return fmt.Errorf("trigger and phrase lists must be non-empty")
	}
	if len(r.PriceContext) == 0 || len(r.FeatureContext) == 0 {
		return fmt.Errorf("context word lists must be non-empty")
	}
	return nil
}

func (b *BehaviorRules) validate() error {
	if b.SearchTopK <= 0 {
		return fmt.Errorf("search_top_k must be positive")
	}
	if b.ExpertOfferSearchGap < 0 {
		return fmt.Errorf("expert_offer_search_gap must not be negative")
	}
	if b.BudgetSoftAskResponse <= 0 || b.BudgetAskByResponse <= 0 {
		return fmt.Errorf("budget ask thresholds must be positive")
	}
	if b.BudgetSoftAskResponse > b.BudgetAskByResponse {
		return fmt.Errorf("budget_soft_ask_response must not exceed budget_ask_by_response")
	}
	return nil
}
