package httpapi

import (
	"encoding/json"
	"net/http"
)

// handlePushRegister registers a staff device token
func (r *Router) handlePushRegister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if body.Platform != "ios" && body.Platform != "android" {
		http.Error(w, `{"error": "platform must be 'ios' or 'android'"}`, http.StatusBadRequest)
		return
	}

	if r.store == nil {
		http.Error(w, `{"error": "device storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	if err := r.store.RegisterDeviceToken(req.Context(), user.ID, body.Token, body.Platform); err != nil {
		r.logger.Printf("push: failed to register token: %v", err)
		http.Error(w, `{"error": "failed to register token"}`, http.StatusInternalServerError)
		return
	}

	r.logger.Printf("push: registered %s token for user %s", body.Platform, user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePushUnregister removes a staff device token
func (r *Router) handlePushUnregister(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var body struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}

	if body.Token == "" {
		http.Error(w, `{"error": "token is required"}`, http.StatusBadRequest)
		return
	}

	if r.store == nil {
		http.Error(w, `{"error": "device storage not available"}`, http.StatusServiceUnavailable)
		return
	}

	if err := r.store.UnregisterDeviceToken(req.Context(), body.Token); err != nil {
		r.logger.Printf("push: failed to unregister token: %v", err)
		http.Error(w, `{"error": "failed to unregister token"}`, http.StatusInternalServerError)
		return
	}

	r.logger.Printf("push: unregistered token for user %s", user.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handlePushTest sends a test notification to the caller's own devices
func (r *Router) handlePushTest(w http.ResponseWriter, req *http.Request) {
	user := getAuthUser(req.Context())
	if user == nil {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}

	if r.store == nil {
		http.Error(w, `{"error": "device storage not available"}`, http.StatusServiceUnavailable)
		return
	}
	if r.apns == nil {
		http.Error(w, `{"error": "push notifications not configured"}`, http.StatusServiceUnavailable)
		return
	}

	tokens, err := r.store.GetUserDeviceTokens(req.Context(), user.ID)
	if err != nil {
		r.logger.Printf("push: failed to load tokens for user %s: %v", user.ID, err)
		http.Error(w, `{"error": "failed to load tokens"}`, http.StatusInternalServerError)
		return
	}
	if len(tokens) == 0 {
		http.Error(w, `{"error": "no registered devices"}`, http.StatusNotFound)
		return
	}

	sent := 0
	for _, t := range tokens {
		if err := r.apns.SendTestNotification(t.Token, "Testbenachrichtigung erfolgreich"); err != nil {
			r.logger.Printf("push: test notification to %s device failed: %v", t.Platform, err)
			continue
		}
		sent++
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": sent > 0, "sent": sent})
}
