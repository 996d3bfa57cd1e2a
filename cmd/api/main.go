package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/cloudguard-sec/internal/application"
	appai "github.com/bryanwahyu/cloudguard-sec/internal/application/ai"
	appscans "github.com/bryanwahyu/cloudguard-sec/internal/application/scans"
	appcache "github.com/bryanwahyu/cloudguard-sec/internal/cache"
	"github.com/bryanwahyu/cloudguard-sec/internal/config"
	"github.com/bryanwahyu/cloudguard-sec/internal/domain/providers"
	aiopenai "github.com/bryanwahyu/cloudguard-sec/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/cloudguard-sec/internal/infra/db/mysql"
	infraevents "github.com/bryanwahyu/cloudguard-sec/internal/infra/events"
	"github.com/bryanwahyu/cloudguard-sec/internal/infra/httpserver"
	"github.com/bryanwahyu/cloudguard-sec/internal/infra/secrets"
	minioStore "github.com/bryanwahyu/cloudguard-sec/internal/infra/storage"
	"github.com/bryanwahyu/cloudguard-sec/internal/middleware"
	"github.com/bryanwahyu/cloudguard-sec/internal/ratelimit"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect MySQL
	db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("mysql connect error: %v", err)
	}
	defer db.Close()

	// init repo
	scanRepo := mysqlp.NewScanRepository(db)
	findingRepo := mysqlp.NewFindingRepository(db)
	accountRepo := mysqlp.NewAccountRepository(db)

	// init credential resolver (AES-256-GCM)
	key, err := base64.StdEncoding.DecodeString(cfg.Credentials.KeyBase64)
	if err != nil {
		log.Fatalf("credentials key decode error: %v", err)
	}
	resolver, err := secrets.NewResolver(key)
	if err != nil {
		log.Fatalf("credentials resolver error: %v", err)
	}

	// init rate limiter, bucket state di MySQL supaya konsisten antar instance
	limiterOpts := []ratelimit.Option{
		ratelimit.WithWaitTimeout(cfg.RateLimit.WaitTimeout),
	}
	for svc, rule := range cfg.RateLimit.Services {
		limiterOpts = append(limiterOpts, ratelimit.WithRule(svc, ratelimit.Rule{
			Capacity:       rule.Capacity,
			RefillInterval: rule.RefillInterval,
		}))
	}
	limiter := ratelimit.NewLimiter(
		mysqlp.NewRateLimitStore(db),
		ratelimit.Rule{
			Capacity:       cfg.RateLimit.Default.Capacity,
			RefillInterval: cfg.RateLimit.Default.RefillInterval,
		},
		limiterOpts...,
	)

	// init cache
	cache := appcache.New(mysqlp.NewCacheStore(db))

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init event dispatcher
	dispatcher := infraevents.NewDispatcher(
		infraevents.NewWebhookPoster(cfg.Events.WebhookURL),
		cfg.Events.QueueSize,
	)
	defer dispatcher.Close()

	// registry scanner per provider, diisi saat deployment punya
	// implementasi scanner untuk provider tertentu
	registry := providers.NewRegistry()

	// init orchestrator
	svc := appscans.NewService(appscans.Deps{
		Accounts: accountRepo,
		Creds:    resolver,
		Registry: registry,
		Scans:    scanRepo,
		Findings: findingRepo,
		Events:   dispatcher,
		Archive:  store,
		Cache:    cache,
		Clock:    application.SystemClock{},
	}, appscans.Options{
		Concurrency:       cfg.Scan.Concurrency,
		PerAccountTimeout: cfg.Scan.PerAccountTimeout,
		BatchTimeout:      cfg.Scan.BatchTimeout,
	})

	// init AI service kalau API key diisi
	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		aiSvc = appai.NewService(
			aiopenai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
			mysqlp.NewAnalystRepository(db),
			findingRepo,
		)
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)

	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"mysql": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.Auth.APIKeys))
		r.Use(middleware.RateLimitMiddleware(limiter))
		r.Mount("/", httpserver.NewRouter(svc, aiSvc))
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
