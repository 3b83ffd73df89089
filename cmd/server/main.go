package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gitmaya/internal/ghapp"
	"gitmaya/internal/handlers"
	"gitmaya/internal/queue"
	"gitmaya/internal/store"
	"gitmaya/internal/version"
	"gitmaya/pkg/config"
)

func main() {
	cfg := config.FromEnv()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if db.SQL != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			log.Fatalf("migrations: %v", err)
		}
		cancel()
	}

	nc, err := queue.Connect(cfg.NATSURL, "gitmaya-server")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Close()
	pub := queue.NewPublisher(nc)

	gh := buildGitHubApp(cfg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(handlers.RequestID(), handlers.StructuredLogger(), handlers.Recover())

	handlers.RegisterRoutes(e, cfg, db, pub, gh)

	srv := &http.Server{
		Addr:              cfg.Address(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("gitmaya %s listening on %s", version.Version, cfg.Address())
	if err := e.StartServer(srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildGitHubApp is best-effort: an unconfigured GitHub App leaves webhook
// ingress working while user-facing GitHub calls report failure tips.
func buildGitHubApp(cfg config.Config) *ghapp.App {
	if cfg.GitHubAppID == "" {
		log.Printf("github app not configured, GITHUB_APP_ID empty")
		return nil
	}
	pem, err := cfg.AppPrivateKey()
	if err != nil {
		log.Printf("github app key: %v", err)
		return nil
	}
	cache, err := ghapp.NewTokenCache(cfg.RedisURL)
	if err != nil {
		log.Printf("token cache: %v", err)
		return nil
	}
	app, err := ghapp.New(cfg.GitHubAppID, pem, cache)
	if err != nil {
		log.Printf("github app: %v", err)
		return nil
	}
	return app
}
