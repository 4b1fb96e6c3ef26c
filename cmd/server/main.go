package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/florianweber/lena/internal/app"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
)

func main() {
	// Local development reads a .env file; deployed instances get real
	// environment variables and the load is a silent no-op.
	_ = godotenv.Load()

	cfg := app.LoadConfigFromEnv()
	logger := log.New(os.Stdout, "lena ", log.LstdFlags)

	if initSentry(cfg, logger) {
		defer sentry.Flush(2 * time.Second)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		logger.Fatalf("init app: %v", err)
	}

	// Background jobs run for the whole process lifetime: the session
	// lifecycle sweep and the daily lead digest.
	if err := a.StartJobs(); err != nil {
		logger.Fatalf("start jobs: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	// Shutdown happens in two phases: stop accepting HTTP requests,
	// then end every live conversation so transcripts and lead data
	// reach the webhook and the store before the process exits.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	a.Shutdown(shutdownCtx)
	_ = a.Close()
}

// initSentry reports whether error monitoring is active so main can
// defer the final flush.
func initSentry(cfg app.Config, logger *log.Logger) bool {
	if cfg.SentryDSN == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Environment:      environment(),
	})
	if err != nil {
		logger.Printf("sentry init failed: %v", err)
		return false
	}
	logger.Printf("sentry initialized")
	return true
}

func environment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
