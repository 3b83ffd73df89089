package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitmaya/internal/ghapp"
	"gitmaya/internal/logx"
	"gitmaya/internal/queue"
	"gitmaya/internal/store"
	"gitmaya/internal/tasks"
	"gitmaya/internal/version"
	"gitmaya/pkg/config"
)

func main() {
	cfg := config.FromEnv()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	nc, err := queue.Connect(cfg.NATSURL, "gitmaya-worker")
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Close()
	pub := queue.NewPublisher(nc)

	handler := tasks.New(cfg, db, buildGitHubApp(cfg), nil)
	consumer := queue.NewConsumer(nc, handler.Handle)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go contactSweep(ctx, cfg, db, pub)

	log.Printf("gitmaya worker %s consuming from %s", version.Version, cfg.NATSURL)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("consumer: %v", err)
	}
}

// contactSweep enqueues one directory refresh per bot application every
// interval.
func contactSweep(ctx context.Context, cfg config.Config, db *store.DB, pub *queue.Publisher) {
	ticker := time.NewTicker(cfg.ContactSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		apps, err := db.ListIMApplications(ctx)
		if err != nil {
			logx.Structured("error", map[string]any{
				"event": "sweep.contacts.list",
				"error": err.Error(),
			})
			continue
		}
		for _, app := range apps {
			if _, err := pub.Enqueue(ctx, tasks.TaskContactsSync, tasks.ContactsSyncPayload{IMApplicationID: app.ID}); err != nil {
				logx.Structured("error", map[string]any{
					"event":  "sweep.contacts.enqueue",
					"app_id": app.AppID,
					"error":  err.Error(),
				})
			}
		}
	}
}

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
