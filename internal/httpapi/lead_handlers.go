package httpapi

import (
	"net/http"
	"strconv"

	"github.com/florianweber/lena/internal/store"
)

// handleListLeads returns the newest leads for the dashboard
func (r *Router) handleListLeads(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "lead storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	limit := 100
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	leads, err := r.store.ListLeads(req.Context(), limit)
	if err != nil {
		r.logger.Printf("leads: list failed: %v", err)
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []store.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

// handleGetLead returns one lead
func (r *Router) handleGetLead(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "lead storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := req.PathValue("id")
	if id == "" {
		http.Error(w, `{"error": "missing id"}`, http.StatusBadRequest)
		return
	}

	lead, err := r.store.GetLead(req.Context(), id)
	if err != nil {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// handleListSessions returns recent sessions for the dashboard
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "session storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	sessions, err := r.store.ListRecentChatSessions(req.Context(), 100)
	if err != nil {
		r.logger.Printf("leads: session list failed: %v", err)
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"active":   r.sessions.ActiveCount(),
	})
}

// handleGetStoredSession returns one persisted session with its transcript
func (r *Router) handleGetStoredSession(w http.ResponseWriter, req *http.Request) {
	if r.store == nil {
		http.Error(w, `{"error": "session storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	id := req.PathValue("id")
	if id == "" {
		http.Error(w, `{"error": "missing id"}`, http.StatusBadRequest)
		return
	}

	session, err := r.store.GetChatSession(req.Context(), id)
	if err != nil {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}
	turns, err := r.store.GetSessionTurns(req.Context(), id)
	if err != nil {
		r.logger.Printf("leads: turns load failed for %s: %v", id, err)
		http.Error(w, `{"error": "database error"}`, http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []store.SessionTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"turns":   turns,
	})
}
