// Package rules loads the qualification rule tables: signal keywords, lead
// scoring weights, classifier patterns, filter field definitions, and reset
// phrases. Everything tunable lives in a YAML data file so a deployment can
// be re-targeted (new language, new studio) without touching code. The
// tables are loaded once at startup, validated, and treated as immutable
// for the process lifetime.
package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Ruleset is the root of all qualification configuration.
type Ruleset struct {
	Signals    SignalRules     `yaml:"signals"`
	Lead       LeadRules       `yaml:"lead"`
	Classifier ClassifierRules `yaml:"classifier"`
	Filters    FilterRules     `yaml:"filters"`
	Reset      ResetRules      `yaml:"reset"`
	Behavior   BehaviorRules   `yaml:"behavior"`
}

// SignalRules drives buying-signal detection. Keywords are matched as
// lowercase substrings, deliberately without word boundaries.
type SignalRules struct {
	Hot     []string      `yaml:"hot"`
	Warm    []string      `yaml:"warm"`
	Cool    []string      `yaml:"cool"`
	Scoring SignalScoring `yaml:"scoring"`
}

// SignalScoring holds the confidence constants for each signal tier.
type SignalScoring struct {
	HotBase             float64 `yaml:"hot_base"`
	HotIncrement        float64 `yaml:"hot_increment"`
	WarmBase            float64 `yaml:"warm_base"`
	WarmIncrement       float64 `yaml:"warm_increment"`
	WarmSearchIncrement float64 `yaml:"warm_search_increment"`
	CoolConfidence      float64 `yaml:"cool_confidence"`
	MildBase            float64 `yaml:"mild_base"`
	MildSearchIncrement float64 `yaml:"mild_search_increment"`
}

// LeadRules holds the static weights for the 0-10 lead degree calculation.
type LeadRules struct {
	HotWeight               float64 `yaml:"hot_weight"`
	HotCap                  float64 `yaml:"hot_cap"`
	WarmWeight              float64 `yaml:"warm_weight"`
	WarmCap                 float64 `yaml:"warm_cap"`
	CoolPenalty             float64 `yaml:"cool_penalty"`
	IntentConfidenceDivisor float64 `yaml:"intent_confidence_divisor"`

	SearchLogWeight float64 `yaml:"search_log_weight"`
	SearchCap       float64 `yaml:"search_cap"`
	ProductsWeight  float64 `yaml:"products_weight"`
	ProductsCap     float64 `yaml:"products_cap"`

	TimingScores  map[string]float64 `yaml:"timing_scores"`
	TimingDefault float64            `yaml:"timing_default"`
	StepScores    map[string]float64 `yaml:"step_scores"`
	StepDefault   float64            `yaml:"step_default"`

	// SynergyRules is an ordered list; evaluation stops at the first
	// (timing, step) match. Bonuses never accumulate.
	SynergyRules []SynergyRule `yaml:"synergy_rules"`

	ReachScores  map[string]float64 `yaml:"reach_scores"`
	ReachDefault float64            `yaml:"reach_default"`

	BaseConfidence float64 `yaml:"base_confidence"`
	PerDataPoint   float64 `yaml:"per_data_point"`
}

// SynergyRule awards a bonus when a timing answer and a next-step answer
// co-occur.
type SynergyRule struct {
	Timing string  `yaml:"timing"`
	Step   string  `yaml:"step"`
	Bonus  float64 `yaml:"bonus"`
}

// ClassifierRules holds the regex pattern lists, static confidences, and
// vocabulary used to route a raw message to a category.
type ClassifierRules struct {
	Patterns   map[string][]string `yaml:"patterns"`
	Confidence map[string]float64  `yaml:"confidence"`

	SingleAttrs     []string          `yaml:"single_attrs"`
	TechnicalWords  []string          `yaml:"technical_words"`
	DomainKeywords  []string          `yaml:"domain_keywords"`
	ProductKeywords []string          `yaml:"product_keywords"`
	TypoCorrections map[string]string `yaml:"typo_corrections"`
}

// Pattern group names the classifier depends on. The comparison group is
// carried for the word-limit table but has no branch in the classify chain.
const (
	PatternGreeting  = "greeting"
	PatternBuying    = "buying"
	PatternVague     = "vague"
	PatternGratitude = "gratitude"
	PatternOffTopic  = "off_topic"
	PatternPrice     = "price"
	PatternSpecific  = "specific"
)

// FilterRules defines every filterable treatment attribute: which group it
// belongs to, its allowed values and aliases, and numeric sanity bounds.
type FilterRules struct {
	Fields           map[string]FieldDef       `yaml:"fields"`
	Categorical      map[string]CategoricalDef `yaml:"categorical_values"`
	NumericBounds    map[string]NumericBounds  `yaml:"numeric_bounds"`
	MinPrefixBounds  *NumericBounds            `yaml:"min_prefix_bounds"`
	ImplicitMappings []ImplicitMapping         `yaml:"implicit_mappings"`
	Truthy           []string                  `yaml:"truthy"`
	Falsy            []string                  `yaml:"falsy"`
}

// Field groups.
const (
	GroupCategorical   = "categorical"
	GroupNumericRange  = "numeric_range"
	GroupBinaryFeature = "binary_feature"
	GroupUsageTag      = "usage_tag"
	GroupModeTag       = "mode_tag"
)

// FieldDef describes one filterable attribute.
type FieldDef struct {
	Group       string `yaml:"group"`
	DisplayName string `yaml:"display_name"`
	Topic       string `yaml:"topic,omitempty"`
	PostFilter  bool   `yaml:"post_filter,omitempty"`
}

// CategoricalDef lists the allowed values for a categorical field plus
// normalization aliases. An empty Allowed list marks a free-text field.
type CategoricalDef struct {
	Allowed []string          `yaml:"allowed"`
	Aliases map[string]string `yaml:"aliases"`
}

// NumericBounds are sanity-check limits, not search filters.
type NumericBounds struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// ImplicitMapping translates a shortcut phrase ("kurz", "naturkosmetik")
// into concrete filter values.
type ImplicitMapping struct {
	Phrases []string       `yaml:"phrases"`
	Filters map[string]any `yaml:"filters"`
}

// ResetRules holds the phrase lists for reset-trigger detection, checked in
// priority order: full phrases, then price phrases, then bare trigger words
// disambiguated by context.
type ResetRules struct {
	Triggers       []string `yaml:"triggers"`
	FullPhrases    []string `yaml:"full_phrases"`
	PricePhrases   []string `yaml:"price_phrases"`
	PriceContext   []string `yaml:"price_context"`
	FeatureContext []string `yaml:"feature_context"`
}

// BehaviorRules are conversation-policy thresholds.
type BehaviorRules struct {
	SearchTopK             int `yaml:"search_top_k"`
	ExpertOfferSearchGap   int `yaml:"expert_offer_search_gap"`
	BudgetSoftAskResponse  int `yaml:"budget_soft_ask_response"`
	BudgetAskByResponse    int `yaml:"budget_ask_by_response"`
	MinResultsOK           int `yaml:"min_results_ok"`
	MaxFeaturesBeforeRelax int `yaml:"max_features_before_relax"`
}

// Default returns the embedded ruleset.
func Default() (*Ruleset, error) {
	return parse(defaultRules)
}

// Load reads a ruleset from path, falling back to the embedded defaults
// when path is empty.
func Load(path string) (*Ruleset, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// CategoricalFields returns the set of field names in the categorical group.
func (f *FilterRules) CategoricalFields() map[string]bool {
	out := make(map[string]bool)
	for name, def := range f.Fields {
		if def.Group == GroupCategorical {
			out[name] = true
		}
	}
	return out
}

// NumericFields returns the set of field names in the numeric_range group.
func (f *FilterRules) NumericFields() map[string]bool {
	out := make(map[string]bool)
	for name, def := range f.Fields {
		if def.Group == GroupNumericRange {
			out[name] = true
		}
	}
	return out
}

// BoundsFor returns the sanity bounds for a numeric field, merging the
// min_ prefix rule for fields named min_*.
func (f *FilterRules) BoundsFor(field string) NumericBounds {
	rules := f.NumericBounds[field]
	if f.MinPrefixBounds != nil && len(field) > 4 && field[:4] == "min_" {
		if rules.Min == nil {
			rules.Min = f.MinPrefixBounds.Min
		}
		if rules.Max == nil {
			rules.Max = f.MinPrefixBounds.Max
		}
	}
	return rules
}
