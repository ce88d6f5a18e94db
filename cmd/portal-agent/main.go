package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/noah-isme/sma-adp-portal/api/swagger"
	"github.com/noah-isme/sma-adp-portal/internal/apiclient"
	"github.com/noah-isme/sma-adp-portal/internal/handler"
	"github.com/noah-isme/sma-adp-portal/internal/service"
	"github.com/noah-isme/sma-adp-portal/pkg/config"
	"github.com/noah-isme/sma-adp-portal/pkg/jobs"
	"github.com/noah-isme/sma-adp-portal/pkg/logger"
)

// @title SMA ADP Portal Agent
// @version 0.1.0
// @description Session and enrollment-consistency agent for the SMA ADP enrollment API
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openTokenStore(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to open token store", "driver", cfg.TokenStore.Driver, "error", err)
	}
	defer closeStore()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	endpoints := apiclient.EndpointsFor(cfg.API.Variant, cfg.Endpoints)
	transport := apiclient.NewTransport(cfg.API.BaseURL, cfg.API.Timeout, logr, apiclient.WithCallObserver(metricsSvc))
	authAPI := apiclient.NewAuthAPI(transport, endpoints)

	tokens := service.NewTokenManager(store, authAPI, logr,
		service.WithExpirySkew(cfg.Session.ExpirySkew),
		service.WithRefreshObserver(metricsSvc),
	)
	pipeline := apiclient.NewPipeline(transport, tokens, metricsSvc, logr)
	accountAPI := apiclient.NewAccountAPI(pipeline, endpoints)
	enrollmentAPI := apiclient.NewEnrollmentAPI(pipeline, endpoints)

	engine := service.NewEnrollmentEngine(enrollmentAPI, tokens, validate, logr, service.WithEngineObserver(metricsSvc))
	reconcile := jobs.NewQueue("enrollment-reconcile", engine.ReconcileJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Reconcile.QueueSize,
		MaxRetries: 0,
		Logger:     logr,
	})
	reconcile.Start(ctx)
	defer reconcile.Stop()
	engine.AttachReconcileQueue(reconcile)

	redirects := service.NewLoginRedirect(logr)
	sessions := service.NewSessionService(authAPI, accountAPI, tokens, engine, redirects, validate, logr)

	var ready atomic.Bool
	go func() {
		restored, err := sessions.Bootstrap(ctx)
		if err != nil {
			logr.Sugar().Warnw("session bootstrap failed", "error", err)
		} else {
			logr.Sugar().Infow("session bootstrap finished", "restored", restored)
		}
		ready.Store(true)
	}()

	router := handler.NewRouter(handler.RouterDeps{
		Config:      cfg,
		Logger:      logr,
		Metrics:     metricsSvc,
		Sessions:    tokens,
		Session:     handler.NewSessionHandler(sessions, redirects, endpoints.Variant),
		Enrollments: handler.NewEnrollmentHandler(engine),
		Admin:       handler.NewAdminHandler(enrollmentAPI),
		Ops:         handler.NewMetricsHandler(metricsSvc, ready.Load),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "upstream", cfg.API.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
