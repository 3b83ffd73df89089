package tasks

import (
	"context"
	"database/sql"

	"gitmaya/internal/logx"
	"gitmaya/internal/store"
)

// contactsSync refreshes one bot application's cached contact directory.
// The worker's sweep enqueues one of these per application every interval.
func (h *Handler) contactsSync(ctx context.Context, p ContactsSyncPayload) error {
	app, err := h.db.GetIMApplicationByID(ctx, p.IMApplicationID)
	if err != nil {
		return err
	}
	msgr := h.messenger(app.AppID, app.AppSecret)
	contacts, err := msgr.ListContacts(ctx)
	if err != nil {
		logx.Structured("error", map[string]any{
			"event":  "task.contacts_sync.list",
			"app_id": app.AppID,
			"error":  err.Error(),
		})
		return err
	}
	rows := make([]store.LarkContact, 0, len(contacts))
	for _, c := range contacts {
		if c.OpenID == "" {
			continue
		}
		rows = append(rows, store.LarkContact{
			IMApplicationID: app.ID,
			OpenID:          c.OpenID,
			Name:            c.Name,
			EnName:          nullString(c.EnName),
			Avatar:          nullString(c.Avatar),
		})
	}
	if err := h.db.RefreshLarkContacts(ctx, app.ID, rows); err != nil {
		return err
	}
	logx.Structured("info", map[string]any{
		"event":    "task.contacts_sync",
		"app_id":   app.AppID,
		"contacts": len(rows),
	})
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
