package store

import (
	"context"
	"database/sql"
	"time"
)

// ChatGroup maps one repo to one chat-platform group. The partial unique
// index chat_groups_one_active_per_repo enforces the one-active-per-repo
// invariant at the store layer.
type ChatGroup struct {
	ID              string
	RepoID          string
	IMApplicationID string
	ChatID          string
	Name            string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const chatGroupCols = `id::text, repo_id::text, im_application_id::text, chat_id, name, active, created_at, updated_at`

func scanChatGroup(row *sql.Row) (*ChatGroup, error) {
	var g ChatGroup
	err := row.Scan(&g.ID, &g.RepoID, &g.IMApplicationID, &g.ChatID, &g.Name, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (d *DB) GetActiveChatGroupByRepo(ctx context.Context, repoID string) (*ChatGroup, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + chatGroupCols + ` FROM chat_groups WHERE repo_id=$1::uuid AND active LIMIT 1`
	return scanChatGroup(d.SQL.QueryRowContext(ctx, q, repoID))
}

func (d *DB) GetChatGroupByChatID(ctx context.Context, chatID string) (*ChatGroup, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + chatGroupCols + ` FROM chat_groups WHERE chat_id=$1 AND active LIMIT 1`
	return scanChatGroup(d.SQL.QueryRowContext(ctx, q, chatID))
}

// CreateChatGroup binds a chat to a repo. A second active group for the same
// repo violates the partial unique index and surfaces as an error.
func (d *DB) CreateChatGroup(ctx context.Context, repoID, imApplicationID, chatID, name string) (*ChatGroup, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `
INSERT INTO chat_groups (repo_id, im_application_id, chat_id, name, active, created_at, updated_at)
VALUES ($1::uuid, $2::uuid, $3, $4, true, now(), now())
RETURNING ` + chatGroupCols
	return scanChatGroup(d.SQL.QueryRowContext(ctx, q, repoID, imApplicationID, chatID, name))
}

func (d *DB) DeactivateChatGroup(ctx context.Context, id string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE chat_groups SET active=false, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, id)
	return err
}
