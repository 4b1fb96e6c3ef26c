package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/florianweber/lena/internal/catalog"
	"github.com/florianweber/lena/internal/convo"
	"github.com/florianweber/lena/internal/eventlog"
	"github.com/florianweber/lena/internal/httpapi"
	"github.com/florianweber/lena/internal/jobs"
	"github.com/florianweber/lena/internal/llm"
	"github.com/florianweber/lena/internal/locale"
	"github.com/florianweber/lena/internal/notifications"
	"github.com/florianweber/lena/internal/respond"
	"github.com/florianweber/lena/internal/rules"
	"github.com/florianweber/lena/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	store    *store.Store
	eventLog *eventlog.Logger
	engine   *convo.Engine
	sessions *httpapi.SessionRegistry
	mailer   *notifications.Mailer
	webhook  *notifications.WebhookClient

	lifecycle *jobs.SessionLifecycleJob
	digest    *jobs.DigestJob
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		sessions: httpapi.NewSessionRegistry(),
	}

	// Conversations keep live state in memory; the database is a snapshot
	// for the dashboard and can be absent in development.
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.store = store.New(db)
		a.eventLog = eventlog.New(db)
	} else {
		logger.Println("DATABASE_URL not set, running without persistence")
		a.eventLog = eventlog.New(nil)
	}

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	rs, err := loadRules(cfg.RulesPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	locs, err := loadLocales(cfg.LocalesPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	var client llm.Client
	if cfg.OpenAIAPIKey != "" {
		client = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	} else {
		logger.Println("OPENAI_API_KEY not set, replies degrade to fallback texts")
	}

	engine, err := convo.NewEngine(convo.EngineConfig{
		Rules:   rs,
		Catalog: cat,
		Locales: locs,
		Persona: respond.DefaultPersona(),
		LLM:     client,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	mailer, err := notifications.NewMailer(notifications.MailerConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.EmailFrom,
		StudioEmail: cfg.StudioEmail,
		CompanyName: cfg.CompanyName,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.mailer = mailer

	webhook, err := notifications.NewWebhookClient(notifications.WebhookConfig{
		URL:         cfg.WebhookURL,
		APIKey:      cfg.WebhookAPIKey,
		CompanyName: cfg.CompanyName,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.webhook = webhook

	if err := a.bootstrapStaffUser(cfg); err != nil {
		a.Close()
		return nil, err
	}

	a.lifecycle = jobs.NewSessionLifecycleJob(a.sessions, a.store, a.webhook, a.mailer,
		a.eventLog, logger, cfg.LifecycleInterval, cfg.SessionIdleTimeout)
	if cfg.ArchiveDir != "" {
		a.lifecycle.SetArchiveDir(cfg.ArchiveDir)
	}
	a.digest = jobs.NewDigestJob(a.store, a.mailer, logger, cfg.DigestSchedule)

	return a, nil
}

// bootstrapStaffUser creates the initial dashboard account on first start.
func (a *App) bootstrapStaffUser(cfg Config) error {
	if a.store == nil || cfg.StaffEmail == "" || cfg.StaffPassword == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	email := strings.ToLower(strings.TrimSpace(cfg.StaffEmail))
	existing, err := a.store.GetStaffUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.StaffPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	id, err := a.store.CreateStaffUser(ctx, email, string(hash), "admin")
	if err != nil {
		return err
	}
	a.logger.Printf("staff: created initial account %s (%s)", email, id)
	return nil
}

func loadRules(path string) (*rules.Ruleset, error) {
	if path == "" {
		return rules.Default()
	}
	return rules.Load(path)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func loadLocales(path string) (*locale.Catalog, error) {
	if path == "" {
		return locale.Default()
	}
	return locale.Load(path)
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:  a.cfg.PublicBaseURL,
		JWTSecret:      a.cfg.JWTSecret,
		JWTExpiry:      a.cfg.JWTExpiry,
		APNsKeyPath:    a.cfg.APNsKeyPath,
		APNsKeyID:      a.cfg.APNsKeyID,
		APNsTeamID:     a.cfg.APNsTeamID,
		APNsBundleID:   a.cfg.APNsBundleID,
		APNsProduction: a.cfg.APNsProduction,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, a.engine, a.sessions, a.mailer)
}

// StartJobs launches the background jobs. Call after the router is up.
func (a *App) StartJobs() error {
	a.lifecycle.Start()
	return a.digest.Start()
}

// Shutdown drains the session registry, stops the background jobs and
// finalizes every session still live so no transcript is lost.
func (a *App) Shutdown(ctx context.Context) {
	a.sessions.StartDraining()
	a.lifecycle.Stop()
	a.digest.Stop()

	for _, s := range a.sessions.All() {
		if s.EndedAt == nil {
			now := time.Now().UTC()
			s.EndedAt = &now
		}
	}
	a.lifecycle.Sweep(ctx)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
