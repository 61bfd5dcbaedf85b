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

	"github.com/redis/go-redis/v9"

	"pairmood/api/internal/app"
	"pairmood/api/internal/avatar"
	"pairmood/api/internal/config"
	"pairmood/api/internal/email"
	"pairmood/api/internal/export"
	"pairmood/api/internal/identity"
	"pairmood/api/internal/moods"
	"pairmood/api/internal/search"
	"pairmood/api/internal/session"
	"pairmood/api/internal/store"
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

	// Redis carries the live mood feed notifications and the refresh
	// sessions. Without it, refresh sessions fall back to Postgres and
	// the live mood stream answers 503.
	var rdb *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(redisOpts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
	}

	identityClient := identity.NewClient(dataStore)
	moodClient := moods.NewClient(dataStore, rdb)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	// Pass an untyped nil when Meilisearch is absent so the facade's
	// nil check holds.
	var engine search.Engine
	if meiliClient != nil {
		engine = meiliClient
	}
	searchService := search.NewService(engine, dataStore)

	exportService := export.NewService(dataStore)

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if emailService.IsConfigured() {
		log.Printf("Email delivery configured via %s", cfg.SMTPHost)
	} else {
		log.Printf("Email delivery not configured, partner invites disabled")
	}

	var avatarService *avatar.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		avatarService, err = avatar.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("avatar storage failed: %v", err)
		}
		log.Printf("Avatar storage configured at %s", cfg.MinioEndpoint)
	}

	var sessionStore app.RefreshStore = dataStore
	if rdb != nil {
		sessionStore = session.NewRedisStoreWithClient(rdb, dataStore)
	} else {
		log.Printf("Redis not configured, refresh sessions stored in Postgres, live mood stream disabled")
	}

	service := app.New(cfg, dataStore, sessionStore, identityClient, moodClient, app.Options{
		Search:  searchService,
		Export:  exportService,
		Email:   emailService,
		Avatars: avatarService,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /api/moods/stream connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("PairMood API listening on %s", cfg.Addr)
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
