package convo

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/florianweber/lena/internal/catalog"
	"github.com/florianweber/lena/internal/classify"
	"github.com/florianweber/lena/internal/filters"
	"github.com/florianweber/lena/internal/llm"
	"github.com/florianweber/lena/internal/locale"
	"github.com/florianweber/lena/internal/respond"
	"github.com/florianweber/lena/internal/rules"
	"github.com/florianweber/lena/internal/scoring"
)

// historyWindow bounds how many transcript turns go to the LLM per reply.
const historyWindow = 12

// Engine runs the deterministic per-turn pipeline. All dependencies are
// injected; the LLM client may be nil, in which case replies fall back to
// canned messages (useful in tests and degraded operation).
type Engine struct {
	rules      *rules.Ruleset
	classifier *classify.Classifier
	detector   *scoring.SignalDetector
	scorer     *scoring.LeadScorer
	filters    *filters.Engine
	catalog    *catalog.Catalog
	locales    *locale.Catalog
	persona    respond.Persona
	llm        llm.Client
	logger     *log.Logger
	now        func() time.Time
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Rules   *rules.Ruleset
	Catalog *catalog.Catalog
	Locales *locale.Catalog
	Persona respond.Persona
	LLM     llm.Client
	Logger  *log.Logger
	Now     func() time.Time
}

// NewEngine builds the pipeline from a ruleset.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Rules == nil {
		return nil, fmt.Errorf("engine: ruleset is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("engine: catalog is required")
	}
	if cfg.Locales == nil {
		return nil, fmt.Errorf("engine: locales are required")
	}
	classifier, err := classify.New(&cfg.Rules.Classifier)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		rules:      cfg.Rules,
		classifier: classifier,
		detector:   scoring.NewSignalDetector(&cfg.Rules.Signals),
		scorer:     scoring.NewLeadScorer(&cfg.Rules.Lead),
		filters:    filters.NewEngine(&cfg.Rules.Filters, &cfg.Rules.Reset),
		catalog:    cfg.Catalog,
		locales:    cfg.Locales,
		persona:    cfg.Persona,
		llm:        cfg.LLM,
		logger:     logger,
		now:        now,
	}, nil
}

// NewSession starts a session with a time-of-day greeting already on the
// transcript.
func (e *Engine) NewSession(id, language string) *Session {
	now := e.now()
	s := NewSession(id, language, now)
	bundle := e.locales.Bundle(language)
	greeting := bundle.Greeting(now)
	if greeting != "" {
		s.Transcript = append(s.Transcript, Turn{Role: "assistant", Content: greeting, At: now})
	}
	return s
}

// TurnResult is everything one processed message produced, for callers
// that persist, log or render it.
type TurnResult struct {
	Reply          string
	Classification classify.Result
	Signal         scoring.SignalResult
	Lead           scoring.LeadDegree
	Results        []catalog.Result
	DroppedFilters []string
	ResetScope     filters.ResetScope
	ExpertOffered  bool
	Validation     filters.ValidationResult
	SystemPrompt   string
}

// ProcessTurn runs the full pipeline for one customer message: reset
// check, classification, filter updates, optional catalog search, signal
// detection, lead scoring, steering prompt assembly and the LLM reply.
func (e *Engine) ProcessTurn(ctx context.Context, s *Session, message string) (*TurnResult, error) {
	msg := strings.TrimSpace(message)
	now := e.now()
	s.LastActivity = now
	s.UserMsgCount++
	s.Transcript = append(s.Transcript, Turn{Role: "user", Content: msg, At: now})

	res := &TurnResult{ResetScope: filters.ResetNone}

	// Reset triggers clear preferences before anything else looks at them.
	if hit, scope := e.filters.CheckResetTrigger(msg); hit {
		s.Prefs.ApplyReset(scope)
		res.ResetScope = scope
		e.logger.Printf("Convo: session %s reset scope=%s", s.ID, scope)
	}

	cls := e.classifier.Classify(msg)
	res.Classification = cls

	e.updateFilters(ctx, s, msg, cls)
	res.Validation = s.lastValidation

	query := msg
	if cls.CorrectedQuery != "" {
		query = cls.CorrectedQuery
	}
	var dropped []string
	if cls.RequiresSearch {
		behavior := e.rules.Behavior
		results, droppedFields := e.catalog.SearchRelaxed(query, s.Prefs.ToMap(), behavior.SearchTopK, behavior.MinResultsOK)
		dropped = droppedFields
		s.SearchCount++
		s.TreatmentsSeen += len(results)
		s.LastSearch = results
		s.Searches = append(s.Searches, SearchRecord{
			Number:       s.SearchCount,
			AfterUserMsg: s.UserMsgCount,
			Results:      results,
		})
		res.Results = results
		res.DroppedFilters = droppedFields
	}

	sig := e.detector.Detect(msg, s.SearchCount)
	s.HotCount += sig.HotCount
	s.WarmCount += sig.WarmCount
	s.CoolCount += sig.CoolCount
	s.SignalLevel = sig.Level
	res.Signal = sig

	lead := e.scorer.Score(scoring.LeadInput{
		HotCount:       s.HotCount,
		WarmCount:      s.WarmCount,
		CoolCount:      s.CoolCount,
		SearchCount:    s.SearchCount,
		TreatmentsSeen: s.TreatmentsSeen,
		PurchaseTiming: s.Qualification.PurchaseTiming,
		NextStep:       s.Qualification.NextStep,
		Reachability:   s.Qualification.Reachability,
		MessageLength:  len(msg),
	})
	s.Lead = lead
	res.Lead = lead

	bundle := e.locales.Bundle(s.Language)
	builder := respond.NewBuilder(e.persona, bundle, e.rules.Behavior)

	offered, phrase := e.maybeOfferExpert(s, builder, sig, dropped)
	res.ExpertOffered = offered

	system := e.buildSystemPrompt(s, builder, cls, sig, res, offered, phrase, dropped)
	res.SystemPrompt = system

	reply := e.generateReply(ctx, s, bundle, system)
	res.Reply = reply
	s.ResponseCount++
	s.Transcript = append(s.Transcript, Turn{Role: "assistant", Content: reply, At: e.now()})

	if s.Stage == StageGreeting {
		s.Stage = StageConsultation
	}

	e.logger.Printf("Convo: session %s turn=%d category=%s signal=%s score=%.1f",
		s.ID, s.UserMsgCount, cls.Category, sig.Level, lead.Score)
	return res, nil
}

// updateFilters merges LLM extraction (when available) with deterministic
// implicit mappings, validates the result and applies it to the session
// preferences. Extraction failure is not fatal; the implicit mappings
// still apply.
func (e *Engine) updateFilters(ctx context.Context, s *Session, msg string, cls classify.Result) {
	raw := map[string]any{}
	if e.llm != nil && cls.RequiresSearch {
		extracted, usage, err := e.llm.ExtractFilters(ctx, msg, s.Prefs.ToMap())
		s.Usage.Add(usage)
		if err != nil {
			e.logger.Printf("Convo: filter extraction failed for session %s: %v", s.ID, err)
		} else {
			for k, v := range extracted {
				raw[k] = v
			}
		}
	}
	// Exact-phrase mappings win over extraction.
	for k, v := range e.filters.ImplicitFilters(msg) {
		raw[k] = v
	}
	if len(raw) == 0 {
		s.lastValidation = filters.ValidationResult{}
		return
	}

	control := map[string]any{}
	for _, key := range []string{"clear_all", "clear_price", "clear_features", "negations"} {
		if v, ok := raw[key]; ok {
			control[key] = v
			delete(raw, key)
		}
	}

	validation := e.filters.Validate(raw)
	e.filters.Apply(s.Prefs, validation.Valid, control)
	s.lastValidation = validation

	for field, reason := range validation.Dropped {
		e.logger.Printf("Convo: session %s dropped filter %s: %s", s.ID, field, reason)
	}
}

// maybeOfferExpert decides whether this turn includes a handoff offer.
// HOT signals can always trigger one; WARM and MILD wait until enough
// searches have happened. An already pending or accepted offer blocks
// new ones, as does a COOL signal.
func (e *Engine) maybeOfferExpert(s *Session, builder *respond.Builder, sig scoring.SignalResult, dropped []string) (bool, string) {
	if s.ExpertAccepted || s.ExpertOfferPending || sig.Level == scoring.SignalCool {
		return false, ""
	}

	gap := e.rules.Behavior.ExpertOfferSearchGap
	switch sig.Level {
	case scoring.SignalHot:
		if s.ExpertOfferCount > 0 && s.SearchCount-s.lastOfferSearch < gap {
			return false, ""
		}
	default:
		if s.SearchCount < gap || s.SearchCount-s.lastOfferSearch < gap {
			return false, ""
		}
	}

	match := respond.MatchInfo{
		ShowingAlternatives: len(dropped) > 0,
		Unmatched:           dropped,
	}
	phrase := builder.ExpertOfferPhrase(sig.Level, s.ExpertOfferCount, match, sig.HotMatched)
	if phrase == "" {
		return false, ""
	}

	s.ExpertOfferCount++
	s.ExpertOffered = true
	s.ExpertOfferPending = true
	s.lastOfferSearch = s.SearchCount
	return true, phrase
}

// buildSystemPrompt assembles the steering prompt for this turn: the
// search-result presentation when a search ran, otherwise the
// category-specific template, each followed by the lead, expert and
// budget blocks.
func (e *Engine) buildSystemPrompt(s *Session, builder *respond.Builder, cls classify.Result, sig scoring.SignalResult, res *TurnResult, offered bool, phrase string, dropped []string) string {
	leadInstr := builder.LeadInstruction(sig.Level, offered, phrase, s.ExpertAccepted)
	expertInstr := builder.ExpertQuestionInstruction(s.ExpertOfferPending)
	budgetInstr := builder.BudgetInstruction(s.Prefs, &s.Budget, s.ResponseCount)

	if cls.RequiresSearch {
		matchStatus := "full"
		if len(dropped) > 0 {
			matchStatus = "partial"
		}
		return builder.SearchResponse(respond.SearchContext{
			Results:            res.Results,
			Filters:            s.Prefs.ToMap(),
			ClassificationInfo: string(cls.Category),
			SkipHint:           skipHint(s),
			FilterExplanation:  filterExplanation(res.Validation),
			SignalLevel:        sig.Level,
			SearchNumber:       s.SearchCount,
			MatchStatus:        matchStatus,
			LeadInstruction:    leadInstr,
			ExpertInstruction:  expertInstr,
			BudgetInstruction:  budgetInstr,
		})
	}

	last := ""
	if n := len(s.Transcript); n > 0 {
		last = s.Transcript[n-1].Content
	}
	prompt := builder.Prompt(cls.PromptKey, respond.PromptVars{
		Message:   last,
		Original:  last,
		Corrected: cls.CorrectedQuery,
		SkipHint:  skipHint(s),
	})

	var sb strings.Builder
	sb.WriteString(prompt)
	for _, block := range []string{leadInstr, expertInstr, budgetInstr} {
		if block != "" {
			sb.WriteString("\n\n")
			sb.WriteString(block)
		}
	}
	return sb.String()
}

// filterExplanation turns dropped filters into a short note the model
// can relay ("80cm ist leider kein gültiger Wert").
func filterExplanation(v filters.ValidationResult) string {
	if len(v.Dropped) == 0 {
		return ""
	}
	reasons := make([]string, 0, len(v.Dropped))
	for _, reason := range v.Dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return "Hinweis zu den Filtern: " + strings.Join(reasons, " ")
}

// skipHint tells the model which clarifying questions are already
// answered by active filters, so it never re-asks them.
func skipHint(s *Session) string {
	if s.Prefs.IsEmpty() {
		return ""
	}
	return "Bereits bekannt: " + s.Prefs.Summary() + ". Diese Punkte NICHT erneut abfragen."
}

// generateReply calls the LLM with the steering prompt and a bounded
// transcript window. A nil client or an API failure degrades to the
// patience fallback instead of erroring the whole turn.
func (e *Engine) generateReply(ctx context.Context, s *Session, bundle *locale.Bundle, system string) string {
	if e.llm == nil {
		return bundle.Message("patience_fallback")
	}

	history := s.Transcript
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}

	reply, usage, err := e.llm.Reply(ctx, system, msgs)
	s.Usage.Add(usage)
	if err != nil {
		e.logger.Printf("Convo: reply generation failed for session %s: %v", s.ID, err)
		return bundle.Message("patience_fallback")
	}
	return reply
}
