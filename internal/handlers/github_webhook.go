package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"gitmaya/internal/events"
)

// GitHubWebhook verifies the delivery signature, dedupes, classifies, and
// enqueues exactly one task. Signature check happens before any routing.
func (h *Handler) GitHubWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	sig := c.Request().Header.Get("X-Hub-Signature-256")
	if h.cfg.GitHubWebhookSecret != "" {
		if !verifyHMACSHA256(body, h.cfg.GitHubWebhookSecret, sig) {
			return writeError(c, http.StatusForbidden, "invalid_signature", "signature mismatch", nil)
		}
	}

	eventName := c.Request().Header.Get("X-GitHub-Event")
	deliveryID := c.Request().Header.Get("X-GitHub-Delivery")
	hsum := sha256.Sum256(body)
	sum := hex.EncodeToString(hsum[:])
	source := "github." + eventName

	if h.dedupe != nil && h.dedupe.CheckAndMark(source, deliveryID, sum) {
		return c.JSON(http.StatusOK, map[string]any{"accepted": true, "delivery_id": deliveryID, "status": "duplicate"})
	}
	if h.db != nil && deliveryID != "" {
		dup, err := h.db.IsDuplicateDelivery(c.Request().Context(), source, deliveryID, sum)
		if err == nil && dup {
			return c.JSON(http.StatusOK, map[string]any{"accepted": true, "delivery_id": deliveryID, "status": "duplicate"})
		}
		_ = h.db.UpsertEventDelivery(c.Request().Context(), source, eventName, deliveryID, sum, "received")
	}

	kind, ok := events.ParseKind(eventName)
	if !ok {
		LogStructured("info", map[string]any{
			"event":       "github.webhook.ignored",
			"delivery_id": deliveryID,
			"x_event":     eventName,
		})
		return c.JSON(http.StatusOK, map[string]any{"accepted": true, "delivery_id": deliveryID, "status": "ignored"})
	}

	task, err := events.Route(kind, body)
	if errors.Is(err, events.ErrUnhandledEvent) {
		LogStructured("info", map[string]any{
			"event":       "github.webhook.unhandled",
			"delivery_id": deliveryID,
			"x_event":     eventName,
			"detail":      err.Error(),
		})
		return c.JSON(http.StatusOK, map[string]any{"accepted": true, "delivery_id": deliveryID, "status": "ignored"})
	}
	if errors.Is(err, events.ErrMalformedEvent) {
		return writeError(c, http.StatusBadRequest, "malformed_event", "payload failed schema validation", map[string]any{
			"x_event": eventName,
			"detail":  truncate(err.Error(), 200),
		})
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "route_failed", "event routing failed", nil)
	}

	if h.pub == nil {
		return writeError(c, http.StatusServiceUnavailable, "queue_unavailable", "task queue not connected", nil)
	}
	jobID, err := h.pub.Enqueue(c.Request().Context(), task.Kind, task.Payload)
	if err != nil {
		if h.db != nil && deliveryID != "" {
			_ = h.db.UpdateEventDeliveryStatus(c.Request().Context(), source, deliveryID, "enqueue_failed")
		}
		return writeError(c, http.StatusInternalServerError, "enqueue_failed", "task enqueue failed", nil)
	}
	if h.db != nil && deliveryID != "" {
		_ = h.db.UpdateEventDeliveryStatus(c.Request().Context(), source, deliveryID, "queued")
	}
	LogStructured("info", map[string]any{
		"event":       "github.webhook",
		"delivery_id": deliveryID,
		"x_event":     eventName,
		"task":        task.Kind,
		"job_id":      jobID,
	})
	return c.JSON(http.StatusOK, map[string]any{
		"accepted":    true,
		"delivery_id": deliveryID,
		"task":        task.Kind,
		"job_id":      jobID,
		"status":      "queued",
	})
}

func verifyHMACSHA256(body []byte, secret, got string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	got = strings.TrimSpace(got)
	if strings.HasPrefix(strings.ToLower(got), "sha256=") {
		got = got[len("sha256="):]
	}
	wantB, err1 := hex.DecodeString(want)
	gotB, err2 := hex.DecodeString(got)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(wantB, gotB)
}
