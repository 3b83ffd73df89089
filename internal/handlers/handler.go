// Package handlers is the HTTP surface: webhook ingress, OAuth callbacks,
// chat event ingress, and the small team/account read APIs. Handlers verify,
// dedupe, classify, and enqueue; the worker does the heavy lifting.
package handlers

import (
	"time"

	"gitmaya/internal/command"
	"gitmaya/internal/ghapp"
	"gitmaya/internal/lark"
	"gitmaya/internal/queue"
	"gitmaya/internal/store"
	"gitmaya/internal/tasks"
	"gitmaya/pkg/config"
)

type Handler struct {
	cfg        config.Config
	db         *store.DB
	dedupe     *Deduper
	pub        *queue.Publisher
	gh         *ghapp.App
	messenger  tasks.MessengerFactory
	dispatcher *command.Dispatcher
}

// NewHandler wires the command dispatcher onto the shared collaborators. A
// nil messenger factory falls back to real Lark clients; tests pass a
// recorder.
func NewHandler(cfg config.Config, db *store.DB, pub *queue.Publisher, gh *ghapp.App, factory tasks.MessengerFactory) *Handler {
	if factory == nil {
		factory = func(appID, appSecret string) tasks.Messenger {
			return lark.NewClient(appID, appSecret)
		}
	}
	h := &Handler{
		cfg:       cfg,
		db:        db,
		dedupe:    NewDeduper(5 * time.Minute),
		pub:       pub,
		gh:        gh,
		messenger: factory,
	}
	h.dispatcher = h.buildDispatcher()
	return h
}
