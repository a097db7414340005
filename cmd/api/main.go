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

	"github.com/ezzyraouy/smartnote-api/internal/app"
	"github.com/ezzyraouy/smartnote-api/internal/authpw"
	"github.com/ezzyraouy/smartnote-api/internal/config"
	"github.com/ezzyraouy/smartnote-api/internal/notes"
	"github.com/ezzyraouy/smartnote-api/internal/search"
	"github.com/ezzyraouy/smartnote-api/internal/session"
	"github.com/ezzyraouy/smartnote-api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if !cfg.SearchConfigured() {
		log.Fatal("search configuration incomplete: MEILI_HOST, MEILI_API_KEY, and MEILI_INDEX are required")
	}
	if cfg.UsingDevSecret() {
		log.Printf("warning: SMARTNOTE_JWT_SECRET is not set, signing tokens with the built-in development secret")
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	mirror := search.NewMeili(cfg.MeiliHost, cfg.MeiliAPIKey, cfg.MeiliIndex)
	defer mirror.Close()

	users := authpw.NewService(dataStore)
	noteService := notes.New(dataStore, mirror)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.New(cfg, users, noteService, redisStore, dataStore, mirror)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, users, noteService, dataStore, dataStore, mirror)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("SmartNote API listening on %s", cfg.Addr)
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
