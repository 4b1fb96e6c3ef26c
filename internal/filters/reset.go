package filters

import "strings"

// ResetScope says which slice of the preference state a reset clears.
type ResetScope string

const (
	ResetAll      ResetScope = "all"
	ResetPrice    ResetScope = "price"
	ResetFeatures ResetScope = "features"
	ResetNone     ResetScope = "none"
)

// CheckResetTrigger detects "start over" style messages. Full-reset and
// price-reset phrases are checked first; a bare trigger word ("vergiss",
// "reset") is then disambiguated by surrounding context words, defaulting
// to a full reset.
func (e *Engine) CheckResetTrigger(message string) (bool, ResetScope) {
	lower := strings.ToLower(message)

	for _, phrase := range e.reset.FullPhrases {
		if strings.Contains(lower, phrase) {
			return true, ResetAll
		}
	}

	for _, phrase := range e.reset.PricePhrases {
		if strings.Contains(lower, phrase) {
			return true, ResetPrice
		}
	}

	for _, trigger := range e.reset.Triggers {
		if !strings.Contains(lower, trigger) {
			continue
		}
		if containsAny(lower, e.reset.PriceContext) {
			return true, ResetPrice
		}
		if containsAny(lower, e.reset.FeatureContext) {
			return true, ResetFeatures
		}
		return true, ResetAll
	}

	return false, ResetNone
}

// ApplyReset clears the preference slice named by scope.
func (p *Preferences) ApplyReset(scope ResetScope) {
	switch scope {
	case ResetAll:
		p.ClearAll()
	case ResetPrice:
		p.ClearPrice()
	case ResetFeatures:
		p.ClearFeatures()
	}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
