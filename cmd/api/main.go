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

	"outreach-platform/internal/audit"
	"outreach-platform/internal/auth"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/config"
	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/provider"
	"outreach-platform/internal/reporting"
	"outreach-platform/internal/scheduler"
	"outreach-platform/pkg/logger"
	"outreach-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Domain wiring, leaves first.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	callRepo := calls.NewPostgresRepo(db)
	queue := scheduler.NewRedis(rdb)
	callSvc := calls.NewService(callRepo, queue).
		WithAudit(calls.AuditAdapter{Audit: auditSvc, Log: log}).
		WithLogger(log).
		WithRetryBaseDelay(cfg.Retry.BaseDelay)

	dialClient := provider.NewClient(cfg.Provider)

	batchRepo := batch.NewPostgresRepo(db)
	caseSrc := batch.NewPostgresCaseSource(db)
	orchestrator := &batch.CallOrchestrator{Calls: callSvc}
	batches := batch.NewProcessor(batchRepo, orchestrator, caseSrc).
		WithAudit(auditSvc).
		WithLogger(log).
		WithStagger(cfg.Batch.EmailStagger, cfg.Batch.CallStagger)

	reports := reporting.NewService(callRepo)

	dispatcher := scheduler.NewDispatcher(queue, callRepo, dialClient).
		WithDialCap(rdb, cfg.Provider.DialCap).
		WithLogger(log)
	go dispatcher.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW: auth.RequireAccessToken(authManager),
		Handlers: httpapi.Handlers{
			Auth:    authManager,
			Batches: batches,
			Calls:   callRepo,
			Reports: reports,
		},
		Webhooks: &provider.WebhookHandler{
			Calls:  callSvc,
			Secret: cfg.Provider.WebhookSecret,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
