package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/florianweber/lena/internal/convo"
	"github.com/florianweber/lena/internal/costs"
	"github.com/florianweber/lena/internal/eventlog"
	"github.com/florianweber/lena/internal/filters"
	"github.com/florianweber/lena/internal/notifications"
	"github.com/florianweber/lena/internal/scoring"
	"github.com/florianweber/lena/internal/store"
)

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// handleCreateSession opens a new conversation and returns the greeting
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Language string `json:"language"`
		Channel  string `json:"channel"`
	}
	// Empty body is fine, defaults apply
	_ = json.NewDecoder(req.Body).Decode(&body)
	if body.Language == "" {
		body.Language = "de"
	}
	if body.Channel == "" {
		body.Channel = "web"
	}

	s := r.engine.NewSession(newSessionID(), body.Language)
	if !r.sessions.Put(s) {
		http.Error(w, `{"error": "server is shutting down"}`, http.StatusServiceUnavailable)
		return
	}

	if r.store != nil {
		if err := r.store.CreateChatSession(req.Context(), s.ID, s.Language, body.Channel, s.CreatedAt); err != nil {
			r.logger.Printf("sessions: failed to persist session %s: %v", s.ID, err)
			captureError(req, err, "create session persist failed")
		}
		for i, turn := range s.Transcript {
			r.persistTurn(req.Context(), s.ID, turn, i, nil, "")
		}
	}

	r.eventLog.LogAsync(s.ID, eventlog.EventSessionStarted, map[string]any{
		"language": s.Language,
		"channel":  body.Channel,
	})

	greeting := ""
	if len(s.Transcript) > 0 {
		greeting = s.Transcript[0].Content
	}
	r.monitor.Broadcast(MonitorEvent{
		Type:      "session_started",
		SessionID: s.ID,
		Data:      map[string]any{"language": s.Language},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": s.ID,
		"language":   s.Language,
		"stage":      s.Stage,
		"greeting":   greeting,
	})
}

// liveSession resolves the path session or writes a 404.
func (r *Router) liveSession(w http.ResponseWriter, req *http.Request) *convo.Session {
	id := req.PathValue("id")
	if id == "" {
		http.Error(w, `{"error": "missing session id"}`, http.StatusBadRequest)
		return nil
	}
	s := r.sessions.Get(id)
	if s == nil {
		http.Error(w, `{"error": "session not found"}`, http.StatusNotFound)
		return nil
	}
	return s
}

// handleGetSession returns the live session state
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// handlePostMessage runs one customer message through the engine
func (r *Router) handlePostMessage(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		http.Error(w, `{"error": "message is required"}`, http.StatusBadRequest)
		return
	}

	res, err := r.engine.ProcessTurn(req.Context(), s, body.Message)
	if err != nil {
		r.logger.Printf("sessions: turn failed for %s: %v", s.ID, err)
		captureError(req, err, "process turn failed")
		http.Error(w, `{"error": "failed to process message"}`, http.StatusInternalServerError)
		return
	}

	if r.store != nil {
		// The turn appended one user and one assistant entry
		n := len(s.Transcript)
		if n >= 2 {
			category := string(res.Classification.Category)
			level := string(res.Signal.Level)
			r.persistTurn(req.Context(), s.ID, s.Transcript[n-2], n-2, &category, level)
			r.persistTurn(req.Context(), s.ID, s.Transcript[n-1], n-1, nil, "")
		}
		r.persistSessionState(req.Context(), s)
	}

	r.eventLog.LogAsync(s.ID, eventlog.EventMessageClassified, map[string]any{
		"category":   res.Classification.Category,
		"confidence": res.Classification.Confidence,
	})
	r.eventLog.LogAsync(s.ID, eventlog.EventSignalDetected, map[string]any{
		"level":      res.Signal.Level,
		"hot_count":  s.HotCount,
		"warm_count": s.WarmCount,
	})
	r.eventLog.LogAsync(s.ID, eventlog.EventLeadScored, map[string]any{
		"score":          res.Lead.Score,
		"confidence_pct": res.Lead.Confidence,
	})
	if res.ResetScope != filters.ResetNone {
		r.eventLog.LogAsync(s.ID, eventlog.EventResetTriggered, map[string]any{"scope": res.ResetScope})
	}
	if res.ExpertOffered {
		r.eventLog.LogAsync(s.ID, eventlog.EventExpertOffered, map[string]any{"count": s.ExpertOfferCount})
	}

	r.monitor.Broadcast(MonitorEvent{
		Type:      "message",
		SessionID: s.ID,
		Data: map[string]any{
			"message":      body.Message,
			"reply":        res.Reply,
			"category":     res.Classification.Category,
			"signal_level": res.Signal.Level,
			"lead_score":   res.Lead.Score,
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"reply":                res.Reply,
		"stage":                s.Stage,
		"category":             res.Classification.Category,
		"signal_level":         res.Signal.Level,
		"lead":                 res.Lead,
		"results":              res.Results,
		"dropped_filters":      res.DroppedFilters,
		"expert_offered":       res.ExpertOffered,
		"expert_offer_pending": s.ExpertOfferPending,
	})
}

// handleExpertResponse records the answer to a pending expert offer
func (r *Router) handleExpertResponse(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	message := r.engine.HandleExpertResponse(s, body.Accepted)

	event := eventlog.EventExpertDeclined
	if body.Accepted {
		event = eventlog.EventExpertAccepted
	}
	r.eventLog.LogAsync(s.ID, event, nil)
	if r.store != nil {
		r.persistSessionState(req.Context(), s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"stage":   s.Stage,
	})
}

// handleSaveContact stores contact fields from the collection form
func (r *Router) handleSaveContact(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Name             string `json:"name"`
		Email            string `json:"email"`
		Phone            string `json:"phone"`
		PreferredContact string `json:"preferred_contact"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	message := r.engine.SaveContact(s, body.Name, body.Email, body.Phone, body.PreferredContact)
	if r.store != nil {
		r.persistContact(req.Context(), s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"stage":   s.Stage,
		"contact": s.Contact,
	})
}

// handleConsent records the consent answer. Granting consent with complete
// contact data submits the lead.
func (r *Router) handleConsent(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Consent bool `json:"consent"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	message := r.engine.RecordConsent(s, body.Consent)

	event := eventlog.EventConsentDeclined
	if body.Consent {
		event = eventlog.EventConsentGranted
	}
	r.eventLog.LogAsync(s.ID, event, nil)
	if r.store != nil {
		r.persistContact(req.Context(), s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": message,
		"stage":   s.Stage,
		"consent": s.ConsentGiven,
	})
}

// handleQualification records the three button answers
func (r *Router) handleQualification(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		PurchaseTiming string `json:"purchase_timing"`
		NextStep       string `json:"next_step"`
		Reachability   string `json:"reachability"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	r.engine.RecordQualification(s, body.PurchaseTiming, body.NextStep, body.Reachability)

	writeJSON(w, http.StatusOK, map[string]any{
		"qualification": s.Qualification,
	})
}

// handleSchedule records an appointment wish and mails the confirmation
func (r *Router) handleSchedule(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	r.engine.ScheduleAppointment(s, body.Date, body.Time)
	if r.store != nil {
		r.persistContact(req.Context(), s)
	}

	if s.Contact.Email != "" {
		email := s.Contact.Email
		date, timeOfDay := s.Contact.ScheduleDate, s.Contact.ScheduleTime
		treatments := seenTreatments(s)
		sessionID := s.ID
		go func() {
			if err := r.mailer.SendAppointmentEmail(email, date, timeOfDay, treatments); err != nil {
				r.logger.Printf("sessions: appointment email for %s failed: %v", sessionID, err)
				r.eventLog.LogAsync(sessionID, eventlog.EventEmailFailed, map[string]any{"kind": "appointment"})
				return
			}
			r.eventLog.LogAsync(sessionID, eventlog.EventEmailSent, map[string]any{"kind": "appointment"})
		}()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schedule_date": s.Contact.ScheduleDate,
		"schedule_time": s.Contact.ScheduleTime,
	})
}

// handleCompleteSession checks the handoff requirements and submits the lead
func (r *Router) handleCompleteSession(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}
	if r.engine == nil {
		http.Error(w, `{"error": "conversations not available"}`, http.StatusServiceUnavailable)
		return
	}

	missing := r.engine.Complete(s)
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"missing": missing,
			"message": "Noch fehlend: " + strings.Join(missing, ", ") + ". Bitte fragen Sie die Kundin danach.",
		})
		return
	}

	leadID := r.submitLead(req.Context(), s)
	if r.store != nil {
		r.persistSessionState(req.Context(), s)
	}
	cost := costs.CalculateSessionCosts(costs.SessionMetrics{
		LLMInputTokens:  s.Usage.PromptTokens,
		LLMOutputTokens: s.Usage.CompletionTokens,
	})
	r.eventLog.LogAsync(s.ID, eventlog.EventSessionCompleted, map[string]any{
		"lead_id":    leadID,
		"cost_cents": cost.TotalCostCents,
	})
	r.monitor.Broadcast(MonitorEvent{
		Type:      "lead_submitted",
		SessionID: s.ID,
		Data:      map[string]any{"name": s.Contact.Name, "score": s.Lead.Score},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"stage":   s.Stage,
		"lead_id": leadID,
	})
}

// handleEndSession stamps the session as ended; the lifecycle job
// finalizes it (webhook delivery, summary email).
func (r *Router) handleEndSession(w http.ResponseWriter, req *http.Request) {
	s := r.liveSession(w, req)
	if s == nil {
		return
	}

	now := nowUTC()
	s.EndedAt = &now
	if r.store != nil {
		if err := r.store.EndChatSession(req.Context(), s.ID, now); err != nil {
			r.logger.Printf("sessions: failed to end session %s: %v", s.ID, err)
		}
	}
	r.monitor.Broadcast(MonitorEvent{Type: "session_ended", SessionID: s.ID})

	writeJSON(w, http.StatusOK, map[string]any{"ended_at": now.Format(time.RFC3339)})
}

// submitLead persists the lead, mails the studio and alerts staff devices
// on hot leads. Returns the lead ID when stored.
func (r *Router) submitLead(ctx context.Context, s *convo.Session) string {
	var leadID string

	if r.store != nil {
		breakdown, _ := json.Marshal(s.Lead.Breakdown)
		lead := store.Lead{
			SessionID:        s.ID,
			Name:             s.Contact.Name,
			Email:            optional(s.Contact.Email),
			Phone:            optional(s.Contact.Phone),
			PreferredContact: optional(s.Contact.PreferredContact),
			Score:            s.Lead.Score,
			ConfidencePct:    s.Lead.Confidence,
			SignalLevel:      string(s.SignalLevel),
			BreakdownJSON:    breakdown,
			PurchaseTiming:   optional(s.Qualification.PurchaseTiming),
			NextStep:         optional(s.Qualification.NextStep),
			Reachability:     optional(s.Qualification.Reachability),
			ScheduleDate:     optional(s.Contact.ScheduleDate),
			ScheduleTime:     optional(s.Contact.ScheduleTime),
			Summary:          optional(s.Summary),
			CreatedAt:        nowUTC(),
		}
		id, err := r.store.InsertLead(ctx, lead)
		if err != nil {
			r.logger.Printf("sessions: failed to store lead for %s: %v", s.ID, err)
		} else {
			leadID = id
		}
	}

	r.eventLog.LogAsync(s.ID, eventlog.EventLeadSubmitted, map[string]any{
		"lead_id": leadID,
		"score":   s.Lead.Score,
		"level":   s.SignalLevel,
	})

	notif := notifications.LeadNotification{
		Name:           s.Contact.Name,
		Phone:          s.Contact.Phone,
		Email:          s.Contact.Email,
		ScheduleDate:   s.Contact.ScheduleDate,
		ScheduleTime:   s.Contact.ScheduleTime,
		PurchaseTiming: s.Qualification.PurchaseTiming,
		NextStep:       s.Qualification.NextStep,
		Reachability:   s.Qualification.Reachability,
		Score:          s.Lead.Score,
		Treatments:     seenTreatments(s),
	}
	sessionID := s.ID
	if r.mailer != nil {
		go func() {
			if err := r.mailer.SendLeadNotification(notif); err != nil {
				r.logger.Printf("sessions: lead email for %s failed: %v", sessionID, err)
				r.eventLog.LogAsync(sessionID, eventlog.EventEmailFailed, map[string]any{"kind": "lead"})
				return
			}
			r.eventLog.LogAsync(sessionID, eventlog.EventEmailSent, map[string]any{"kind": "lead"})
			if r.store != nil && leadID != "" {
				mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := r.store.MarkLeadNotified(mctx, leadID, nowUTC()); err != nil {
					r.logger.Printf("sessions: failed to mark lead %s notified: %v", leadID, err)
				}
			}
		}()
	}

	if s.SignalLevel == scoring.SignalHot {
		r.notifyHotLead(s, leadID)
	}

	return leadID
}

// notifyHotLead pushes an alert to every registered staff device
func (r *Router) notifyHotLead(s *convo.Session, leadID string) {
	if r.apns == nil || r.store == nil {
		return
	}

	alert := notifications.HotLeadAlert{
		LeadID:         leadID,
		SessionID:      s.ID,
		CustomerName:   s.Contact.Name,
		Score:          s.Lead.Score,
		PurchaseTiming: s.Qualification.PurchaseTiming,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		tokens, err := r.store.AllDeviceTokens(ctx)
		if err != nil {
			r.logger.Printf("sessions: failed to load device tokens: %v", err)
			return
		}
		for _, t := range tokens {
			if err := r.apns.SendHotLeadAlert(t.Token, alert); err != nil {
				continue
			}
			r.eventLog.LogAsync(alert.SessionID, eventlog.EventPushSent, map[string]any{"platform": t.Platform})
		}
	}()
}

// persistTurn writes one transcript entry, best effort
func (r *Router) persistTurn(ctx context.Context, sessionID string, turn convo.Turn, seq int, category *string, signalLevel string) {
	if turn.Content == "" {
		return
	}
	t := store.SessionTurn{
		SessionID: sessionID,
		Role:      turn.Role,
		Content:   turn.Content,
		Category:  category,
		Sequence:  seq,
		CreatedAt: turn.At,
	}
	if turn.Role == "user" && signalLevel != "" {
		t.SignalLevel = &signalLevel
	}
	if err := r.store.InsertTurn(ctx, t); err != nil {
		r.logger.Printf("sessions: failed to persist turn %d of %s: %v", seq, sessionID, err)
	}
}

// persistSessionState writes the per-turn snapshot, best effort
func (r *Router) persistSessionState(ctx context.Context, s *convo.Session) {
	c := store.ChatSession{
		ID:                s.ID,
		Stage:             string(s.Stage),
		ResponseCount:     s.ResponseCount,
		SearchCount:       s.SearchCount,
		TreatmentsSeen:    s.TreatmentsSeen,
		SignalLevel:       string(s.SignalLevel),
		LeadScore:         s.Lead.Score,
		LeadConfidencePct: s.Lead.Confidence,
		LastActivityAt:    s.LastActivity,
	}
	if err := r.store.UpdateChatSessionState(ctx, c); err != nil {
		r.logger.Printf("sessions: failed to persist state of %s: %v", s.ID, err)
	}
}

// persistContact writes contact and consent fields, best effort
func (r *Router) persistContact(ctx context.Context, s *convo.Session) {
	c := store.ChatSession{
		ID:               s.ID,
		Name:             optional(s.Contact.Name),
		Email:            optional(s.Contact.Email),
		Phone:            optional(s.Contact.Phone),
		PreferredContact: optional(s.Contact.PreferredContact),
		ScheduleDate:     optional(s.Contact.ScheduleDate),
		ScheduleTime:     optional(s.Contact.ScheduleTime),
		ConsentGiven:     s.ConsentGiven,
		Summary:          optional(s.Summary),
	}
	if err := r.store.UpdateChatSessionContact(ctx, c); err != nil {
		r.logger.Printf("sessions: failed to persist contact of %s: %v", s.ID, err)
	}
}

// seenTreatments lists the results of the most recent search as
// "Name — Category" lines.
func seenTreatments(s *convo.Session) []string {
	var out []string
	for _, res := range s.LastSearch {
		out = append(out, res.Treatment.Name+" — "+res.Treatment.Category)
	}
	return out
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
