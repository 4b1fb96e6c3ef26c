package respond

import (
	"fmt"
	"strings"

	"github.com/florianweber/lena/internal/catalog"
	"github.com/florianweber/lena/internal/scoring"
)

// SearchContext carries everything the search instruction mentions.
type SearchContext struct {
	Results            []catalog.Result
	Filters            map[string]any
	ClassificationInfo string
	SkipHint           string
	FilterExplanation  string
	SignalLevel        scoring.SignalLevel
	SearchNumber       int
	MatchStatus        string
	LeadInstruction    string
	ExpertInstruction  string
	BudgetInstruction  string
}

// SearchResponse assembles the full result-presentation instruction: the
// found treatments, the active filters, the signal-aware lead block, and
// the conversation rules. Optional blocks are only emitted when set so
// the prompt stays as short as the situation allows.
func (b *Builder) SearchResponse(ctx SearchContext) string {
	var sb strings.Builder

	sb.WriteString(b.basePersonality())
	sb.WriteString("\nGEFUNDENE BEHANDLUNGEN:\n")
	if len(ctx.Results) == 0 {
		sb.WriteString("(keine Treffer)\n")
	}
	for _, r := range ctx.Results {
		tr := r.Treatment
		fmt.Fprintf(&sb, "- %s (%s, %s): %.0f €, %d Minuten. %s\n",
			tr.Name, tr.Category, tr.Method, tr.PriceEUR, tr.DurationMinutes, tr.Description)
	}

	if len(ctx.Filters) > 0 {
		fmt.Fprintf(&sb, "\nAKTIVE FILTER: %v\n", ctx.Filters)
	}
	if ctx.FilterExplanation != "" {
		fmt.Fprintf(&sb, "FILTER-HINWEIS: %s\n", ctx.FilterExplanation)
	}
	if ctx.ClassificationInfo != "" {
		fmt.Fprintf(&sb, "EINORDNUNG: %s\n", ctx.ClassificationInfo)
	}
	if ctx.SkipHint != "" {
		fmt.Fprintf(&sb, "%s\n", ctx.SkipHint)
	}

	fmt.Fprintf(&sb, "\nKONTEXT: Suche Nr. %d, %d Treffer, Signal %s, Abdeckung %s.\n",
		ctx.SearchNumber, len(ctx.Results), ctx.SignalLevel, ctx.MatchStatus)

	for _, block := range []string{ctx.LeadInstruction, ctx.ExpertInstruction, ctx.BudgetInstruction} {
		if block != "" {
			sb.WriteString("\n")
			sb.WriteString(block)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(ConversationRules)
	return sb.String()
}
