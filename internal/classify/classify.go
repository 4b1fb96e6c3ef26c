// Package classify routes raw visitor messages to a response strategy
// before any model call or catalog search happens. Non-search categories
// get short templated steering; search categories flow through retrieval.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/florianweber/lena/internal/rules"
)

// Category is the routing decision for one message.
type Category string

const (
	Greeting      Category = "greeting"
	TypoQuery     Category = "typo_query"
	VagueQuery    Category = "vague_query"
	SpecificQuery Category = "specific_query"
	PriceInquiry  Category = "price_inquiry"
	BuyingSignal  Category = "buying_signal"
	Clarification Category = "clarification"
	OffTopic      Category = "off_topic"
	Gratitude     Category = "gratitude"
)

// TypoFix records one dictionary substitution that fired.
type TypoFix struct {
	Typo       string `json:"typo"`
	Correction string `json:"correction"`
}

// Result carries the category plus everything downstream routing needs.
type Result struct {
	Category       Category  `json:"category"`
	Confidence     float64   `json:"confidence"`
	CorrectedQuery string    `json:"corrected_query,omitempty"`
	RequiresSearch bool      `json:"requires_search"`
	PromptKey      string    `json:"prompt_key"`
	TyposFound     []TypoFix `json:"typos_found,omitempty"`
}

// Classifier applies an ordered rule chain; the first matching rule wins.
type Classifier struct {
	rules *rules.ClassifierRules

	greeting  []*regexp.Regexp
	buying    []*regexp.Regexp
	vague     []*regexp.Regexp
	gratitude []*regexp.Regexp
	offTopic  []*regexp.Regexp
	price     []*regexp.Regexp
	specific  []*regexp.Regexp

	typoPatterns map[string]*regexp.Regexp
	singleAttrs  map[string]bool
	productWords []string
}

// New compiles the pattern tables into a classifier. Pattern validity is
// already guaranteed by rules.Validate, so compile errors here indicate a
// programming mistake and are returned rather than panicking.
func New(r *rules.ClassifierRules) (*Classifier, error) {
	c := &Classifier{
		rules:        r,
		typoPatterns: make(map[string]*regexp.Regexp, len(r.TypoCorrections)),
		singleAttrs:  make(map[string]bool, len(r.SingleAttrs)),
	}

	var err error
	compile := func(group string) []*regexp.Regexp {
		if err != nil {
			return nil
		}
		var out []*regexp.Regexp
		out, err = compileGroup(r.Patterns[group])
		if err != nil {
			err = fmt.Errorf("pattern group %s: %w", group, err)
		}
		return out
	}

	c.greeting = compile(rules.PatternGreeting)
	c.buying = compile(rules.PatternBuying)
	c.vague = compile(rules.PatternVague)
	c.gratitude = compile(rules.PatternGratitude)
	c.offTopic = compile(rules.PatternOffTopic)
	c.price = compile(rules.PatternPrice)
	c.specific = compile(rules.PatternSpecific)
	if err != nil {
		return nil, err
	}

	for typo := range r.TypoCorrections {
		// Word boundaries keep "masage" from rewriting inside longer words.
		p, perr := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(typo) + `\b`)
		if perr != nil {
			return nil, fmt.Errorf("typo pattern %q: %w", typo, perr)
		}
		c.typoPatterns[typo] = p
	}

	for _, a := range r.SingleAttrs {
		c.singleAttrs[a] = true
	}

	c.productWords = append(c.productWords, r.DomainKeywords...)
	c.productWords = append(c.productWords, r.ProductKeywords...)
	c.productWords = append(c.productWords, r.TechnicalWords...)

	return c, nil
}

func compileGroup(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// bareAcks are short context-dependent answers that only make sense as a
// reply to something the assistant asked.
var bareAcks = map[string]bool{
	"yes": true, "no": true, "ok": true, "okay": true,
	"sure": true, "ja": true, "nein": true,
}

// Classify runs the ordered rule chain over one message. Order matters
// and is part of the behavior contract: greeting, buying, gratitude,
// price, clarification, typo, vague, off-topic, then the specific-query
// default.
func (c *Classifier) Classify(message string) Result {
	msg := strings.TrimSpace(strings.ToLower(message))
	wordCount := len(strings.Fields(msg))

	if matchAny(c.greeting, msg) {
		return Result{Category: Greeting, Confidence: c.confidence("greeting"), PromptKey: "greeting"}
	}

	if matchAny(c.buying, msg) {
		return Result{Category: BuyingSignal, Confidence: c.confidence("buying_signal"), RequiresSearch: true, PromptKey: "buying_hot"}
	}

	if matchAny(c.gratitude, msg) {
		return Result{Category: Gratitude, Confidence: c.confidence("gratitude"), PromptKey: "gratitude"}
	}

	if matchAny(c.price, msg) {
		return Result{Category: PriceInquiry, Confidence: c.confidence("price_inquiry"), RequiresSearch: true, PromptKey: "price_inquiry"}
	}

	if wordCount <= 3 && (bareAcks[msg] || c.singleAttrs[msg]) {
		return Result{Category: Clarification, Confidence: c.confidence("clarification"), RequiresSearch: true, PromptKey: "clarification"}
	}

	if corrected, fixes := c.correctTypos(msg); len(fixes) > 0 {
		related := c.isProductRelated(corrected)
		key := "typo_clarify"
		if related {
			key = "typo_corrected"
		}
		return Result{
			Category:       TypoQuery,
			Confidence:     c.confidence("typo_query"),
			CorrectedQuery: corrected,
			RequiresSearch: related,
			PromptKey:      key,
			TyposFound:     fixes,
		}
	}

	if matchAny(c.vague, msg) {
		return Result{Category: VagueQuery, Confidence: c.confidence("vague_pattern"), PromptKey: "vague_clarify"}
	}

	// Short messages without any concrete criteria that also mention no
	// treatment vocabulary need a clarifying question, not a search.
	if wordCount <= 5 && !matchAny(c.specific, msg) && !c.isProductRelated(msg) {
		return Result{Category: VagueQuery, Confidence: c.confidence("vague_short"), PromptKey: "vague_clarify"}
	}

	if matchAny(c.offTopic, msg) && !c.isProductRelated(msg) {
		return Result{Category: OffTopic, Confidence: c.confidence("off_topic"), PromptKey: "off_topic"}
	}

	return Result{Category: SpecificQuery, Confidence: c.confidence("default"), RequiresSearch: true, PromptKey: "specific_search"}
}

func (c *Classifier) confidence(key string) float64 {
	return c.rules.Confidence[key]
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func (c *Classifier) correctTypos(text string) (string, []TypoFix) {
	// Sorted iteration keeps the fix list deterministic.
	typos := make([]string, 0, len(c.rules.TypoCorrections))
	for typo := range c.rules.TypoCorrections {
		typos = append(typos, typo)
	}
	sort.Strings(typos)

	corrected := text
	var fixes []TypoFix
	for _, typo := range typos {
		p := c.typoPatterns[typo]
		if p.MatchString(corrected) {
			fix := c.rules.TypoCorrections[typo]
			corrected = p.ReplaceAllString(corrected, fix)
			fixes = append(fixes, TypoFix{Typo: typo, Correction: fix})
		}
	}
	return corrected, fixes
}

func (c *Classifier) isProductRelated(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range c.productWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
