package respond

import "github.com/florianweber/lena/internal/filters"

// budgetInjections steer the model toward asking for a price range. The
// forced variant fires once the conversation has gone on long enough
// without a budget; the soft variants slip the question into an
// otherwise normal reply.
var budgetInjections = map[string]string{
	"forced": `BUDGET-FRAGE (PFLICHT):
Die Kundin hat noch keine Preisvorstellung genannt.
Stellen Sie am Ende GENAU EINE Frage nach dem Budget, zum Beispiel:
"Haben Sie schon eine ungefähre Preisvorstellung?"
Diese Frage ersetzt jede andere Abschlussfrage.`,

	"search_results": `BUDGET-HINWEIS:
Wenn es natürlich passt, fragen Sie am Ende beiläufig nach der Preisvorstellung,
zum Beispiel: "Darf ich fragen, in welchem Rahmen Sie preislich denken?"`,

	"vague": `BUDGET-HINWEIS:
Eine beiläufige Frage nach der Preisvorstellung kann helfen, die Auswahl einzugrenzen.`,
}

// BudgetState is the per-session budget question bookkeeping.
type BudgetState struct {
	Asked bool `json:"asked"`
}

// budgetKnown reports whether the visitor has named a price bound.
func budgetKnown(p *filters.Preferences) bool {
	return p.Numeric["max_price"] != 0 || p.Numeric["min_price"] != 0
}

// ShouldAskBudget reports whether a budget question is still outstanding.
func ShouldAskBudget(p *filters.Preferences, state *BudgetState) bool {
	if budgetKnown(p) {
		return false
	}
	return !state.Asked
}

// BudgetInstruction implements the ask policy: nothing while a question
// is not due, a soft injection exactly at the soft-ask response, and a
// forced question once the conversation reaches the ask-by response.
// The state is marked asked as a side effect, so each session asks at
// most once.
func (b *Builder) BudgetInstruction(p *filters.Preferences, state *BudgetState, responseCount int) string {
	if !ShouldAskBudget(p, state) {
		return ""
	}

	if responseCount >= b.behavior.BudgetAskByResponse {
		state.Asked = true
		return budgetInjections["forced"]
	}

	if responseCount == b.behavior.BudgetSoftAskResponse {
		state.Asked = true
		return budgetInjections["search_results"]
	}

	return ""
}
