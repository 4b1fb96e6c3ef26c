// Package filters tracks the treatment preferences a visitor has expressed
// and validates raw extraction output against the configured field
// definitions. Invalid input is never an error: bad values are dropped
// with a reason, unknown fields become warnings, and the conversation
// keeps going.
package filters

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/florianweber/lena/internal/rules"
)

// Preferences is the accumulated filter state for one session. Categorical
// and numeric fields live in maps, binary features and tags in sets.
// Latest values always override earlier ones.
type Preferences struct {
	Categorical map[string]string   `json:"categorical"`
	Numeric     map[string]float64  `json:"numeric"`
	Features    map[string]struct{} `json:"-"`
	Negations   map[string]struct{} `json:"-"`
	UsageTags   map[string]struct{} `json:"-"`
	ModeTags    map[string]struct{} `json:"-"`
}

// NewPreferences returns an empty preference state.
func NewPreferences() *Preferences {
	return &Preferences{
		Categorical: make(map[string]string),
		Numeric:     make(map[string]float64),
		Features:    make(map[string]struct{}),
		Negations:   make(map[string]struct{}),
		UsageTags:   make(map[string]struct{}),
		ModeTags:    make(map[string]struct{}),
	}
}

// ClearAll wipes every stored preference.
func (p *Preferences) ClearAll() {
	p.Categorical = make(map[string]string)
	p.Numeric = make(map[string]float64)
	p.Features = make(map[string]struct{})
	p.Negations = make(map[string]struct{})
	p.UsageTags = make(map[string]struct{})
	p.ModeTags = make(map[string]struct{})
}

// ClearPrice drops only the budget bounds.
func (p *Preferences) ClearPrice() {
	delete(p.Numeric, "max_price")
	delete(p.Numeric, "min_price")
}

// ClearFeatures drops all binary feature preferences.
func (p *Preferences) ClearFeatures() {
	p.Features = make(map[string]struct{})
}

// IsEmpty reports whether no preference of any kind is stored.
func (p *Preferences) IsEmpty() bool {
	return len(p.Categorical) == 0 && len(p.Numeric) == 0 &&
		len(p.Features) == 0 && len(p.UsageTags) == 0 && len(p.ModeTags) == 0
}

// ToMap flattens the state into a single filter map for catalog queries
// and LLM context. Set members are emitted with value 1.
func (p *Preferences) ToMap() map[string]any {
	out := make(map[string]any)
	for k, v := range p.Categorical {
		out[k] = v
	}
	for k, v := range p.Numeric {
		out[k] = v
	}
	for k := range p.Features {
		out[k] = 1
	}
	for k := range p.UsageTags {
		out[k] = 1
	}
	for k := range p.ModeTags {
		out[k] = 1
	}
	return out
}

// Summary renders the state as a short sorted "key=value" list for logs
// and transcripts.
func (p *Preferences) Summary() string {
	m := p.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

// ValidationResult reports what survived validation and, just as
// important, what was dropped and why.
type ValidationResult struct {
	Valid    map[string]any    `json:"valid"`
	Dropped  map[string]string `json:"dropped"`
	Warnings []string          `json:"warnings"`
}

// Engine validates extractions and applies them to preference state,
// driven entirely by the configured field tables.
type Engine struct {
	rules *rules.FilterRules
	reset *rules.ResetRules
}

// NewEngine builds an engine over the given filter and reset tables.
func NewEngine(f *rules.FilterRules, r *rules.ResetRules) *Engine {
	return &Engine{rules: f, reset: r}
}

// sentinel values meaning "no preference"; they are skipped silently.
var dontCare = map[string]bool{
	"": true, "all": true, "any": true, "unknown": true,
	"egal": true, "doesn't matter": true,
}

// Validate checks a raw extraction map against the field definitions:
// categorical values resolve through aliases, numeric values are cleaned
// and bounds-checked, binary and tag fields normalize through the
// truthy/falsy vocabulary. Nothing here returns an error; every rejected
// value lands in Dropped or Warnings.
func (e *Engine) Validate(raw map[string]any) ValidationResult {
	res := ValidationResult{
		Valid:   make(map[string]any),
		Dropped: make(map[string]string),
	}

	// Sorted iteration keeps warning order stable.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := raw[name]

		if val == nil {
			continue
		}
		if s, ok := val.(string); ok && dontCare[s] {
			continue
		}
		if isNaN(val) {
			res.Dropped[name] = "Invalid value (NaN/null)"
			continue
		}

		def, ok := e.rules.Fields[name]
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown field '%s' ignored", name))
			continue
		}

		switch def.Group {
		case rules.GroupCategorical:
			e.validateCategorical(name, val, &res)
		case rules.GroupNumericRange:
			e.validateNumeric(name, val, &res)
		case rules.GroupBinaryFeature, rules.GroupUsageTag, rules.GroupModeTag:
			e.validateBinary(name, val, &res)
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("Unknown group '%s' for field '%s'", def.Group, name))
		}
	}

	return res
}

func (e *Engine) validateCategorical(name string, val any, res *ValidationResult) {
	cat := e.rules.Categorical[name]

	str, isStr := val.(string)

	// Free-text field: anything non-empty passes.
	if len(cat.Allowed) == 0 {
		if isStr && strings.TrimSpace(str) != "" {
			res.Valid[name] = strings.TrimSpace(str)
		} else {
			res.Dropped[name] = "Empty value"
		}
		return
	}

	if isStr {
		for _, allowed := range cat.Allowed {
			if str == allowed {
				res.Valid[name] = str
				return
			}
		}
		if mapped, ok := cat.Aliases[strings.ToLower(str)]; ok {
			res.Valid[name] = mapped
			return
		}
	}
	res.Dropped[name] = fmt.Sprintf("'%v' not available. Options: %s", val, strings.Join(cat.Allowed, ", "))
}

func (e *Engine) validateNumeric(name string, val any, res *ValidationResult) {
	cleaned, errMsg := cleanNumeric(val)
	if errMsg != "" {
		res.Dropped[name] = errMsg
		return
	}
	if cleaned == nil {
		return
	}

	bounds := e.rules.BoundsFor(name)
	if bounds.Min != nil && *cleaned < *bounds.Min {
		res.Dropped[name] = fmt.Sprintf("Value too low: %v", *cleaned)
		return
	}
	if bounds.Max != nil && *cleaned > *bounds.Max {
		res.Dropped[name] = fmt.Sprintf("Value too high: %v", *cleaned)
		return
	}
	res.Valid[name] = *cleaned
}

func (e *Engine) validateBinary(name string, val any, res *ValidationResult) {
	switch v := val.(type) {
	case string:
		lowered := strings.ToLower(strings.TrimSpace(v))
		if containsString(e.rules.Falsy, lowered) {
			return
		}
		// Truthy strings and any other direct mention both mean wanted.
		res.Valid[name] = 1
	case float64:
		if int(v) == 1 {
			res.Valid[name] = 1
		}
	case int:
		if v == 1 {
			res.Valid[name] = 1
		}
	case bool:
		if v {
			res.Valid[name] = 1
		}
	}
}

// Apply merges a validated filter map plus the extraction's control keys
// into the preference state. Recognized control keys: "negations" (list
// of strings), "clear_price", "clear_features", "clear_all". Clears run
// after value updates, matching how a "forget the budget, show me X"
// message should behave.
func (e *Engine) Apply(p *Preferences, valid map[string]any, control map[string]any) {
	categorical := e.rules.CategoricalFields()
	numeric := e.rules.NumericFields()

	for key, val := range valid {
		switch {
		case categorical[key]:
			if s, ok := val.(string); ok && s != "" {
				p.Categorical[key] = s
			}
		case numeric[key]:
			if f, ok := toFloat(val); ok {
				p.Numeric[key] = f
			}
		case strings.HasPrefix(key, "has_"):
			applyTag(p.Features, key, val)
		case strings.HasPrefix(key, "usage_"):
			applyTag(p.UsageTags, key, val)
		case strings.HasPrefix(key, "mode_"):
			applyTag(p.ModeTags, key, val)
		}
	}

	if negs, ok := control["negations"].([]any); ok {
		for _, n := range negs {
			if s, ok := n.(string); ok && s != "" {
				p.Negations[s] = struct{}{}
			}
		}
	}

	if truthyControl(control["clear_price"]) {
		p.ClearPrice()
	}
	if truthyControl(control["clear_features"]) {
		p.ClearFeatures()
	}
	if truthyControl(control["clear_all"]) {
		p.ClearAll()
	}
}

func applyTag(set map[string]struct{}, key string, val any) {
	f, ok := toFloat(val)
	if !ok {
		return
	}
	switch int(f) {
	case 1:
		set[key] = struct{}{}
	case 0:
		delete(set, key)
	}
}

// ImplicitFilters scans a message for configured shortcut phrases
// ("kurz", "naturkosmetik") and returns the filter values they imply.
// Later mappings override earlier ones on key collision.
func (e *Engine) ImplicitFilters(message string) map[string]any {
	lower := strings.ToLower(message)
	out := make(map[string]any)
	for _, m := range e.rules.ImplicitMappings {
		for _, phrase := range m.Phrases {
			if strings.Contains(lower, phrase) {
				for k, v := range m.Filters {
					out[k] = v
				}
				break
			}
		}
	}
	return out
}

func isNaN(val any) bool {
	switch v := val.(type) {
	case float64:
		return math.IsNaN(v)
	case string:
		switch strings.ToLower(v) {
		case "nan", "none", "null", "":
			return true
		}
	}
	return false
}

// cleanNumeric normalizes German and US number spellings ("30.000",
// "30,000", "30k", "60 €") into a float. Returns a reason string when
// the value cannot be parsed.
func cleanNumeric(val any) (*float64, string) {
	if val == nil {
		return nil, ""
	}
	if isNaN(val) {
		return nil, "Invalid value (NaN)"
	}

	switch v := val.(type) {
	case float64:
		return &v, ""
	case int:
		f := float64(v)
		return &f, ""
	case string:
		cleaned := strings.ToLower(v)
		for _, rep := range []struct{ old, new string }{
			{"k", "000"},
			{".", ""},
			{",", ""},
			{"€", ""},
			{"euro", ""},
			{"km", ""},
		} {
			cleaned = strings.ReplaceAll(cleaned, rep.old, rep.new)
		}
		cleaned = strings.TrimSpace(cleaned)

		for _, word := range strings.Fields(cleaned) {
			if isDigits(word) {
				f, err := strconv.ParseFloat(word, 64)
				if err == nil {
					return &f, ""
				}
			}
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return &f, ""
		}
		return nil, fmt.Sprintf("Could not parse '%s' as number", v)
	}
	return nil, fmt.Sprintf("Unexpected type: %T", val)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func truthyControl(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "true" || v == "1" || v == "yes"
	}
	return false
}
