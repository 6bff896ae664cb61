package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowboard/api/internal/app"
	"flowboard/api/internal/authpw"
	"flowboard/api/internal/config"
	"flowboard/api/internal/email"
	"flowboard/api/internal/export"
	"flowboard/api/internal/feed"
	"flowboard/api/internal/media"
	"flowboard/api/internal/search"
	"flowboard/api/internal/session"
	"flowboard/api/internal/store"
	"flowboard/api/internal/suggest"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgUsers := search.NewPgUsers(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgUsers)
	if meiliClient != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	opts := app.Options{
		Accounts: authpw.NewService(dataStore),
		Search:   searchService,
		Export:   export.NewService(dataStore),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		opts.Sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		opts.Sessions = session.NewPGStore(dataStore)
	}

	mediaCfg := media.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}
	if mediaCfg.IsConfigured() {
		mediaService, err := media.NewService(mediaCfg)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		opts.Media = mediaService
	}

	opts.Suggest = suggest.NewService(suggest.Config{
		URL:    cfg.SuggestURL,
		APIKey: cfg.SuggestAPIKey,
		Model:  cfg.SuggestModel,
	})
	opts.Email = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	service := app.New(cfg, dataStore, opts)

	feedService := feed.NewService(dataStore, cfg.FeedPollInterval)
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go feedService.Run(feedCtx)

	httpServer := app.NewHTTPServer(service, feedService, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Flowboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
