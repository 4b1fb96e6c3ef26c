// Package catalog holds the studio's treatment list and a deterministic
// search over it. Validated preference filters are applied as hard
// constraints, remaining candidates are ranked by keyword overlap with
// the query text. No vector index, no remote calls.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed treatments.yaml
var defaultTreatments []byte

// Treatment is one bookable service.
type Treatment struct {
	Name              string   `yaml:"name" json:"name"`
	Category          string   `yaml:"category" json:"category"`
	Method            string   `yaml:"method" json:"method"`
	PriceEUR          float64  `yaml:"price_eur" json:"price_eur"`
	DurationMinutes   int      `yaml:"duration_minutes" json:"duration_minutes"`
	SkinTypes         []string `yaml:"skin_types" json:"skin_types,omitempty"`
	FirstTimeSuitable bool     `yaml:"first_time_suitable" json:"first_time_suitable"`
	Description       string   `yaml:"description" json:"description"`
	Keywords          []string `yaml:"keywords" json:"keywords,omitempty"`
}

// Catalog is the loaded treatment list.
type Catalog struct {
	treatments []Treatment
}

// Load reads treatments from path, or the embedded defaults when path is
// empty.
func Load(path string) (*Catalog, error) {
	data := defaultTreatments
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read treatments file: %w", err)
		}
	}

	var doc struct {
		Treatments []Treatment `yaml:"treatments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse treatments: %w", err)
	}
	if len(doc.Treatments) == 0 {
		return nil, fmt.Errorf("treatments list is empty")
	}
	for i, tr := range doc.Treatments {
		if tr.Name == "" || tr.Category == "" || tr.PriceEUR <= 0 || tr.DurationMinutes <= 0 {
			return nil, fmt.Errorf("treatment %d (%q) missing name, category, price or duration", i, tr.Name)
		}
	}
	return &Catalog{treatments: doc.Treatments}, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load("")
}

// Len reports how many treatments are loaded.
func (c *Catalog) Len() int {
	return len(c.treatments)
}

// All returns a copy of the full treatment list.
func (c *Catalog) All() []Treatment {
	out := make([]Treatment, len(c.treatments))
	copy(out, c.treatments)
	return out
}

// Result is one search hit with its ranking score.
type Result struct {
	Treatment Treatment `json:"treatment"`
	Score     int       `json:"score"`
}

// Search filters the catalog by the validated preference map and ranks
// survivors by keyword overlap with the query. Supported filter keys:
// treatment_category, skin_type, method, first_time_suitable, model_name,
// min_price, max_price, duration_min, duration_max. Unknown keys are
// ignored. Ranking is deterministic: overlap score desc, then price asc,
// then name.
func (c *Catalog) Search(query string, prefs map[string]any, topK int) []Result {
	var hits []Result
	for _, tr := range c.treatments {
		if !matchesFilters(tr, prefs) {
			continue
		}
		hits = append(hits, Result{Treatment: tr, Score: overlapScore(tr, query)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Treatment.PriceEUR != hits[j].Treatment.PriceEUR {
			return hits[i].Treatment.PriceEUR < hits[j].Treatment.PriceEUR
		}
		return hits[i].Treatment.Name < hits[j].Treatment.Name
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// relaxableFields are dropped one by one when a search comes back too
// thin; category first since it is the coarsest constraint.
var relaxableFields = []string{"treatment_category", "skin_type", "method"}

// SearchRelaxed runs Search and, when fewer than minResults come back,
// retries with categorical constraints removed one at a time. It returns
// the hits plus the names of the filters that were dropped to get them.
func (c *Catalog) SearchRelaxed(query string, prefs map[string]any, topK, minResults int) ([]Result, []string) {
	hits := c.Search(query, prefs, topK)
	if len(hits) >= minResults {
		return hits, nil
	}

	relaxed := make(map[string]any, len(prefs))
	for k, v := range prefs {
		relaxed[k] = v
	}

	var dropped []string
	for _, field := range relaxableFields {
		if _, ok := relaxed[field]; !ok {
			continue
		}
		delete(relaxed, field)
		dropped = append(dropped, field)
		hits = c.Search(query, relaxed, topK)
		if len(hits) >= minResults {
			return hits, dropped
		}
	}
	return hits, dropped
}

func matchesFilters(tr Treatment, prefs map[string]any) bool {
	for key, val := range prefs {
		switch key {
		case "treatment_category":
			if s, ok := val.(string); ok && !strings.EqualFold(tr.Category, s) {
				return false
			}
		case "method":
			if s, ok := val.(string); ok && !strings.EqualFold(tr.Method, s) {
				return false
			}
		case "skin_type":
			if s, ok := val.(string); ok && !supportsSkinType(tr, s) {
				return false
			}
		case "first_time_suitable":
			if s, ok := val.(string); ok && strings.EqualFold(s, "Ja") && !tr.FirstTimeSuitable {
				return false
			}
		case "model_name":
			if s, ok := val.(string); ok && !strings.Contains(strings.ToLower(tr.Name), strings.ToLower(s)) {
				return false
			}
		case "max_price":
			if f, ok := toFloat(val); ok && tr.PriceEUR > f {
				return false
			}
		case "min_price":
			if f, ok := toFloat(val); ok && tr.PriceEUR < f {
				return false
			}
		case "duration_max":
			if f, ok := toFloat(val); ok && float64(tr.DurationMinutes) > f {
				return false
			}
		case "duration_min":
			if f, ok := toFloat(val); ok && float64(tr.DurationMinutes) < f {
				return false
			}
		}
	}
	return true
}

// supportsSkinType treats an empty skin type list as "suits everyone".
func supportsSkinType(tr Treatment, skinType string) bool {
	if len(tr.SkinTypes) == 0 {
		return true
	}
	for _, st := range tr.SkinTypes {
		if strings.EqualFold(st, skinType) {
			return true
		}
	}
	return false
}

func overlapScore(tr Treatment, query string) int {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}

	haystacks := []string{strings.ToLower(tr.Name), strings.ToLower(tr.Description)}
	for _, kw := range tr.Keywords {
		haystacks = append(haystacks, strings.ToLower(kw))
	}

	score := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, w) {
				score++
				break
			}
		}
	}
	return score
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
