package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calling-assistant/internal/appointments"
	"calling-assistant/internal/auth"
	"calling-assistant/internal/calls"
	"calling-assistant/internal/config"
	"calling-assistant/internal/notify"
	"calling-assistant/internal/telephony"
	"calling-assistant/internal/transcripts"
	"calling-assistant/pkg/logger"
	"calling-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	lkauth "github.com/livekit/protocol/auth"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := utils.EnsureSchema(rootCtx, db, calls.Schema, appointments.Schema); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	callSvc := calls.NewService(calls.NewPostgresRepo(db), log)

	var notifier appointments.Notifier = notify.Disabled{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, time.UTC, log)
	}
	apptSvc := appointments.NewService(appointments.NewPostgresRepo(db), notifier, log)

	var blobs transcripts.BlobReader
	if cfg.Storage.Bucket != "" {
		gcs, err := transcripts.NewGCSReader(rootCtx, cfg.Storage.Bucket, cfg.Storage.CredentialsFile)
		if err != nil {
			// URL fetches still work; blob fallback is skipped.
			log.Warn("gcs init failed, blob fallback disabled", "err", err)
		} else {
			defer gcs.Close()
			blobs = gcs
		}
	}
	fetcher := transcripts.NewFetcher(cfg.Transcripts.FetchTimeout, blobs, callSvc, log)

	webhooks := telephony.WebhookHandler{
		Reconciler: telephony.NewReconciler(callSvc, cfg.Storage.Bucket, log),
	}
	if rdb != nil {
		webhooks.Dedup = telephony.NewRedisDeduper(rdb, telephony.DefaultDedupTTL)
	} else {
		webhooks.Dedup = telephony.NewMemoryDeduper(telephony.DefaultDedupTTL)
	}
	if cfg.LiveKitEnabled() {
		webhooks.Keys = lkauth.NewSimpleKeyProvider(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	}

	voices := telephony.DefaultVoices()
	var outbound *telephony.Outbound
	if cfg.LiveKitEnabled() && cfg.LiveKit.URL != "" {
		dispatcher := telephony.NewLiveKitDispatcher(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.AgentName, 0)
		outbound = telephony.NewOutbound(dispatcher, callSvc, voices, log)
		if rdb != nil {
			outbound.WithConcurrencyCap(rdb, cfg.LiveKit.DispatchConcurrency)
		}
	} else {
		log.Warn("livekit not configured, outbound calling disabled")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, deps{
		db:           db,
		auth:         authManager,
		calls:        callSvc,
		appointments: apptSvc,
		transcripts:  fetcher,
		outbound:     outbound,
		voices:       voices,
		webhooks:     webhooks,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// save-call-data waits on the transcript fetch.
		WriteTimeout: cfg.Transcripts.FetchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
