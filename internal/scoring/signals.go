// Package scoring implements buying-signal detection and the 0-10 lead
// degree calculation. Both are pure computations over the rule tables —
// no I/O, no conversation state beyond what the caller passes in.
package scoring

import (
	"strings"

	"github.com/florianweber/lena/internal/rules"
)

// SignalLevel classifies the buying intent of a single message.
type SignalLevel string

const (
	SignalHot  SignalLevel = "HOT"
	SignalWarm SignalLevel = "WARM"
	SignalMild SignalLevel = "MILD"
	SignalCool SignalLevel = "COOL"
)

// SignalResult is the outcome of analyzing one user message.
type SignalResult struct {
	Level       SignalLevel `json:"level"`
	Confidence  float64     `json:"confidence"`
	HotCount    int         `json:"hot_signals"`
	WarmCount   int         `json:"warm_signals"`
	CoolCount   int         `json:"cool_signals"`
	SearchCount int         `json:"search_count"`
	HotMatched  []string    `json:"hot_matched"`
	WarmMatched []string    `json:"warm_matched"`
	CoolMatched []string    `json:"cool_matched"`
}

// SignalDetector matches keyword lists against user messages.
type SignalDetector struct {
	rules *rules.SignalRules
}

// NewSignalDetector builds a detector over the given signal tables.
func NewSignalDetector(r *rules.SignalRules) *SignalDetector {
	return &SignalDetector{rules: r}
}

// Detect analyzes a user message for buying intent. Keywords are matched
// as lowercase substrings without word boundaries, so "kaufen" also hits
// inside "verkaufen". searchCount is the number of catalog searches the
// visitor has triggered so far; one or more searches promotes an
// otherwise neutral message to WARM.
func (d *SignalDetector) Detect(message string, searchCount int) SignalResult {
	lower := strings.ToLower(message)
	s := d.rules.Scoring

	hot := matchKeywords(d.rules.Hot, lower)
	warm := matchKeywords(d.rules.Warm, lower)
	cool := matchKeywords(d.rules.Cool, lower)

	res := SignalResult{
		HotCount:    len(hot),
		WarmCount:   len(warm),
		CoolCount:   len(cool),
		SearchCount: searchCount,
		HotMatched:  hot,
		WarmMatched: warm,
		CoolMatched: cool,
	}

	switch {
	case len(hot) > 0:
		res.Level = SignalHot
		res.Confidence = min1(s.HotBase + float64(len(hot))*s.HotIncrement)
	case len(warm) > 0 || searchCount >= 1:
		res.Level = SignalWarm
		res.Confidence = min1(s.WarmBase + float64(len(warm))*s.WarmIncrement + float64(searchCount)*s.WarmSearchIncrement)
	case len(cool) > 0:
		res.Level = SignalCool
		res.Confidence = s.CoolConfidence
	default:
		// MILD confidence is intentionally not capped at 1.0; downstream
		// consumers only compare it, they never treat it as a probability.
		res.Level = SignalMild
		res.Confidence = s.MildBase + float64(searchCount)*s.MildSearchIncrement
	}

	return res
}

func matchKeywords(keywords []string, lowerMessage string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lowerMessage, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
