package store

import (
	"context"
	"database/sql"
	"time"
)

// LarkContact is one cached contact of a bot application, refreshed by the
// periodic contact sweep.
type LarkContact struct {
	ID              string
	IMApplicationID string
	OpenID          string
	Name            string
	EnName          sql.NullString
	Avatar          sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d *DB) ListLarkContacts(ctx context.Context, imApplicationID string) ([]LarkContact, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, im_application_id::text, open_id, name, en_name, avatar, created_at, updated_at
FROM lark_contacts_cache WHERE im_application_id=$1::uuid ORDER BY name`
	rows, err := d.SQL.QueryContext(ctx, q, imApplicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LarkContact
	for rows.Next() {
		var c LarkContact
		if err := rows.Scan(&c.ID, &c.IMApplicationID, &c.OpenID, &c.Name, &c.EnName, &c.Avatar, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RefreshLarkContacts replaces the cached contacts for one application.
func (d *DB) RefreshLarkContacts(ctx context.Context, imApplicationID string, contacts []LarkContact) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	tx, err := d.SQL.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lark_contacts_cache WHERE im_application_id=$1::uuid`, imApplicationID); err != nil {
		return err
	}
	const ins = `INSERT INTO lark_contacts_cache (im_application_id, open_id, name, en_name, avatar, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, now(), now())`
	for _, c := range contacts {
		if _, err := tx.ExecContext(ctx, ins, imApplicationID, c.OpenID, c.Name, nullIfEmpty(c.EnName.String), nullIfEmpty(c.Avatar.String)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
