// Package locale provides the per-language string tables: expert titles,
// qualification questions, agent steering messages, and greetings. The
// catalog is built once at startup and passed explicitly to whoever needs
// it; language selection happens per call via Bundle(lang), falling back
// to English for unknown codes. There is no process-wide current language.
package locale

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed locales.yaml
var defaultLocales []byte

// fallbackLang is used when a requested language has no bundle.
const fallbackLang = "en"

// Questions are the three qualification prompts.
type Questions struct {
	PurchaseTiming string `yaml:"purchase_timing"`
	NextStep       string `yaml:"next_step"`
	Reachability   string `yaml:"reachability"`
}

// Bundle holds every translatable string for one language.
type Bundle struct {
	Lang string `yaml:"-"`

	ExpertTitle      string `yaml:"expert_title"`
	ExpertTitleAlt   string `yaml:"expert_title_alt"`
	PrimaryService   string `yaml:"primary_service"`
	OffTopicRedirect string `yaml:"off_topic_redirect"`

	ServiceOptions []string `yaml:"service_options"`
	PurchaseTiming []string `yaml:"purchase_timing"`
	Reachability   []string `yaml:"reachability"`

	Messages  map[string]string `yaml:"messages"`
	Questions Questions         `yaml:"questions"`

	Greetings   map[string]string `yaml:"greetings"`
	NotProvided string            `yaml:"not_provided"`
}

// Message returns an agent steering message by key, empty when missing.
func (b *Bundle) Message(key string) string {
	return b.Messages[key]
}

// OffTopicMessage fills the studio's domain into the redirect template.
func (b *Bundle) OffTopicMessage(domain string) string {
	return strings.ReplaceAll(b.OffTopicRedirect, "{domain}", domain)
}

// Greeting picks the salutation for the local time of day: morning 5-12,
// afternoon 12-18, evening 18-22, night otherwise.
func (b *Bundle) Greeting(t time.Time) string {
	hour := t.Hour()
	var key string
	switch {
	case hour >= 5 && hour < 12:
		key = "morning"
	case hour >= 12 && hour < 18:
		key = "afternoon"
	case hour >= 18 && hour < 22:
		key = "evening"
	default:
		key = "night"
	}
	return b.Greetings[key]
}

// Catalog is the set of loaded language bundles.
type Catalog struct {
	bundles map[string]*Bundle
}

// Load reads language bundles from path, or the embedded defaults when
// path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultLocales
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read locales file: %w", err)
		}
	}

	var bundles map[string]*Bundle
	if err := yaml.Unmarshal(data, &bundles); err != nil {
		return nil, fmt.Errorf("parse locales: %w", err)
	}

	c := &Catalog{bundles: bundles}
	if err := c.validate(); err != nil {
		return nil, err
	}
	for lang, b := range bundles {
		b.Lang = lang
	}
	return c, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load("")
}

func (c *Catalog) validate() error {
	fb, ok := c.bundles[fallbackLang]
	if !ok {
		return fmt.Errorf("locales: fallback language %q missing", fallbackLang)
	}
	for lang, b := range c.bundles {
		if b == nil {
			return fmt.Errorf("locales: empty bundle for %q", lang)
		}
		if b.ExpertTitle == "" || b.OffTopicRedirect == "" {
			return fmt.Errorf("locales: %q missing expert_title or off_topic_redirect", lang)
		}
		if b.Questions.PurchaseTiming == "" || b.Questions.NextStep == "" || b.Questions.Reachability == "" {
			return fmt.Errorf("locales: %q missing qualification questions", lang)
		}
		for _, key := range []string{"morning", "afternoon", "evening", "night"} {
			if b.Greetings[key] == "" {
				return fmt.Errorf("locales: %q missing greeting %q", lang, key)
			}
		}
		// Every language must cover the fallback's message keys so a
		// deployed language never silently mixes English into replies.
		for key := range fb.Messages {
			if lang != fallbackLang && b.Messages[key] == "" {
				return fmt.Errorf("locales: %q missing message %q", lang, key)
			}
		}
	}
	return nil
}

// Bundle returns the table for lang, falling back to English. The lang
// code is matched case-insensitively and without region suffix ("de-DE"
// resolves to "de").
func (c *Catalog) Bundle(lang string) *Bundle {
	code := strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if b, ok := c.bundles[code]; ok {
		return b
	}
	return c.bundles[fallbackLang]
}

// Languages lists the loaded language codes.
func (c *Catalog) Languages() []string {
	out := make([]string, 0, len(c.bundles))
	for lang := range c.bundles {
		out = append(out, lang)
	}
	return out
}
