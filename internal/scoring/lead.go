package scoring

import (
	"math"

	"github.com/florianweber/lena/internal/rules"
)

// LeadInput carries everything the scorer needs about one conversation.
// Qualification answers are empty strings until the visitor answers.
type LeadInput struct {
	HotCount       int
	WarmCount      int
	CoolCount      int
	SearchCount    int
	TreatmentsSeen int
	PurchaseTiming string
	NextStep       string
	Reachability   string
	MessageLength  int
}

// defaultMessageLength stands in when the caller has no current message.
const defaultMessageLength = 50

// LeadBreakdown exposes the four scoring factors, each rounded to two
// decimals for display.
type LeadBreakdown struct {
	Intent        float64 `json:"intent"`
	Engagement    float64 `json:"engagement"`
	Qualification float64 `json:"qualification"`
	Accessibility float64 `json:"accessibility"`
}

// LeadDegree is the scored lead: 0-10 with one decimal, plus a whole
// percent confidence derived from how many data points were available.
type LeadDegree struct {
	Score      float64       `json:"score"`
	Confidence int           `json:"confidence"`
	Breakdown  LeadBreakdown `json:"breakdown"`
}

// LeadScorer computes the lead degree from accumulated conversation data.
type LeadScorer struct {
	rules *rules.LeadRules
}

// NewLeadScorer builds a scorer over the given weight tables.
func NewLeadScorer(r *rules.LeadRules) *LeadScorer {
	return &LeadScorer{rules: r}
}

// Score combines four additive factors: intent (signal counts scaled by
// message length), engagement (searches and treatments shown),
// qualification (timing and next-step answers plus at most one synergy
// bonus), and accessibility (reachability answer). The raw sum is scaled
// by a confidence that grows with the number of answered data points,
// capped at 10 and rounded to one decimal.
func (s *LeadScorer) Score(in LeadInput) LeadDegree {
	ls := s.rules

	// Callers without a current message pass 0; the average-length
	// default keeps intent confidence meaningful.
	if in.MessageLength <= 0 {
		in.MessageLength = defaultMessageLength
	}

	// Factor 1: intent, up to 3.0.
	hotScore := math.Min(ls.HotCap, float64(in.HotCount)*ls.HotWeight)
	warmScore := math.Min(ls.WarmCap, float64(in.WarmCount)*ls.WarmWeight)
	coolPenalty := float64(in.CoolCount) * ls.CoolPenalty
	intentRaw := math.Max(0, hotScore+warmScore+coolPenalty)
	intentConfidence := math.Min(1.0, float64(in.MessageLength)/ls.IntentConfidenceDivisor)
	intentScore := intentRaw * (0.7 + 0.3*intentConfidence)

	// Factor 2: engagement, up to 2.5.
	searchScore := math.Min(ls.SearchCap, math.Log(1+float64(in.SearchCount))*ls.SearchLogWeight)
	shownScore := math.Min(ls.ProductsCap, float64(in.TreatmentsSeen)*ls.ProductsWeight)
	engagementScore := searchScore + shownScore

	// Factor 3: qualification, up to 3.5. Synergy rules are ordered and
	// first match wins; bonuses never stack.
	timingScore := lookup(ls.TimingScores, in.PurchaseTiming, ls.TimingDefault)
	stepScore := lookup(ls.StepScores, in.NextStep, ls.StepDefault)
	synergy := 0.0
	for _, rule := range ls.SynergyRules {
		if in.PurchaseTiming == rule.Timing && in.NextStep == rule.Step {
			synergy = rule.Bonus
			break
		}
	}
	qualificationScore := timingScore + stepScore + synergy

	// Factor 4: accessibility, up to 1.0.
	accessibilityScore := lookup(ls.ReachScores, in.Reachability, ls.ReachDefault)

	rawScore := intentScore + engagementScore + qualificationScore + accessibilityScore

	dataPoints := 0
	if in.PurchaseTiming != "" {
		dataPoints++
	}
	if in.NextStep != "" {
		dataPoints++
	}
	if in.Reachability != "" {
		dataPoints++
	}
	if in.SearchCount > 0 {
		dataPoints++
	}
	confidence := ls.BaseConfidence + float64(dataPoints)*ls.PerDataPoint

	return LeadDegree{
		Score:      round1(math.Min(10.0, rawScore*confidence)),
		Confidence: int(math.Round(confidence * 100)),
		Breakdown: LeadBreakdown{
			Intent:        round2(intentScore),
			Engagement:    round2(engagementScore),
			Qualification: round2(qualificationScore),
			Accessibility: round2(accessibilityScore),
		},
	}
}

func lookup(table map[string]float64, key string, def float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return def
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
