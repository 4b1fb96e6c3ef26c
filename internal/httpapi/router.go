package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/florianweber/lena/internal/convo"
	"github.com/florianweber/lena/internal/eventlog"
	"github.com/florianweber/lena/internal/notifications"
	"github.com/florianweber/lena/internal/store"
	"github.com/getsentry/sentry-go"
)

type RouterConfig struct {
	PublicBaseURL string

	// JWT Authentication (staff dashboard)
	JWTSecret string
	JWTExpiry time.Duration

	// APNs Push Notifications
	APNsKeyPath    string // Path to .p8 key file
	APNsKeyID      string // Key ID from Apple Developer Portal
	APNsTeamID     string // Team ID from Apple Developer Portal
	APNsBundleID   string // App bundle ID (e.g., de.beautylounge.app)
	APNsProduction bool   // Use production environment
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	store    *store.Store
	eventLog *eventlog.Logger
	engine   *convo.Engine
	sessions *SessionRegistry
	mailer   *notifications.Mailer
	apns     *notifications.APNsClient
	monitor  *MonitorHub
	mux      *http.ServeMux
}

// NewRouter builds the HTTP surface. Store, mailer and engine may be nil;
// the affected endpoints degrade or reject. Registry is shared with the
// lifecycle job.
func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger,
	engine *convo.Engine, sessions *SessionRegistry, mailer *notifications.Mailer) http.Handler {
	// Initialize APNs client (may be nil if not configured)
	apnsClient, err := notifications.NewAPNsClient(notifications.APNsConfig{
		KeyPath:    cfg.APNsKeyPath,
		KeyID:      cfg.APNsKeyID,
		TeamID:     cfg.APNsTeamID,
		BundleID:   cfg.APNsBundleID,
		Production: cfg.APNsProduction,
	}, logger)
	if err != nil {
		logger.Printf("Warning: APNs client initialization failed: %v", err)
	}

	if sessions == nil {
		sessions = NewSessionRegistry()
	}
	if eventLog == nil {
		eventLog = eventlog.New(nil)
	}

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		store:    s,
		eventLog: eventLog,
		engine:   engine,
		sessions: sessions,
		mailer:   mailer,
		apns:     apnsClient,
		monitor:  NewMonitorHub(logger),
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health and readiness
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Auth endpoints (public)
	r.mux.HandleFunc("POST /auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /auth/refresh", r.handleRefreshToken)
	r.mux.HandleFunc("POST /auth/logout", r.withAuth(r.handleLogout))

	// Chat sessions (public, used by the widget)
	r.mux.HandleFunc("POST /api/sessions", r.handleCreateSession)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.handleGetSession)
	r.mux.HandleFunc("POST /api/sessions/{id}/message", r.handlePostMessage)
	r.mux.HandleFunc("POST /api/sessions/{id}/expert-response", r.handleExpertResponse)
	r.mux.HandleFunc("POST /api/sessions/{id}/contact", r.handleSaveContact)
	r.mux.HandleFunc("POST /api/sessions/{id}/consent", r.handleConsent)
	r.mux.HandleFunc("POST /api/sessions/{id}/qualification", r.handleQualification)
	r.mux.HandleFunc("POST /api/sessions/{id}/schedule", r.handleSchedule)
	r.mux.HandleFunc("POST /api/sessions/{id}/complete", r.handleCompleteSession)
	r.mux.HandleFunc("POST /api/sessions/{id}/end", r.handleEndSession)

	// Staff API (protected)
	r.mux.HandleFunc("GET /api/me", r.withAuth(r.handleGetMe))
	r.mux.HandleFunc("GET /api/leads", r.withAuth(r.handleListLeads))
	r.mux.HandleFunc("GET /api/leads/{id}", r.withAuth(r.handleGetLead))
	r.mux.HandleFunc("GET /api/staff/sessions", r.withAuth(r.handleListSessions))
	r.mux.HandleFunc("GET /api/staff/sessions/{id}", r.withAuth(r.handleGetStoredSession))

	// Push notifications (protected)
	r.mux.HandleFunc("POST /api/push/register", r.withAuth(r.handlePushRegister))
	r.mux.HandleFunc("POST /api/push/unregister", r.withAuth(r.handlePushUnregister))
	r.mux.HandleFunc("POST /api/push/test", r.withAuth(r.handlePushTest))

	// Live conversation monitor (token via query parameter)
	r.mux.HandleFunc("GET /monitor", r.handleMonitorWS)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.sessions.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
