package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	RepoStatusActive   = "active"
	RepoStatusArchived = "archived"
)

// Repo mirrors one external GitHub repository. Rows are never hard-deleted;
// status flips to archived instead.
type Repo struct {
	ID                string
	CodeApplicationID string
	RepoExternalID    int64
	Name              string
	Description       sql.NullString
	MessageID         sql.NullString
	Status            string
	Extra             []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const repoCols = `id::text, code_application_id::text, repo_external_id, name, description, message_id, status, extra, created_at, updated_at`

func scanRepo(row *sql.Row) (*Repo, error) {
	var r Repo
	err := row.Scan(&r.ID, &r.CodeApplicationID, &r.RepoExternalID, &r.Name, &r.Description, &r.MessageID, &r.Status, &r.Extra, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) GetRepoByExternalID(ctx context.Context, codeApplicationID string, externalID int64) (*Repo, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + repoCols + ` FROM repos WHERE code_application_id=$1::uuid AND repo_external_id=$2 LIMIT 1`
	return scanRepo(d.SQL.QueryRowContext(ctx, q, codeApplicationID, externalID))
}

func (d *DB) GetRepoByID(ctx context.Context, id string) (*Repo, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + repoCols + ` FROM repos WHERE id=$1::uuid LIMIT 1`
	return scanRepo(d.SQL.QueryRowContext(ctx, q, id))
}

// GetRepoByFullName resolves "name" within an installation, used by /match.
func (d *DB) GetRepoByName(ctx context.Context, codeApplicationID, name string) (*Repo, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + repoCols + ` FROM repos WHERE code_application_id=$1::uuid AND name=$2 LIMIT 1`
	return scanRepo(d.SQL.QueryRowContext(ctx, q, codeApplicationID, name))
}

// GetRepoByMessageID maps a repo announcement card back to its repo, letting
// thread replies under that card target the repo.
func (d *DB) GetRepoByMessageID(ctx context.Context, messageID string) (*Repo, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + repoCols + ` FROM repos WHERE message_id=$1 LIMIT 1`
	return scanRepo(d.SQL.QueryRowContext(ctx, q, messageID))
}

// RepoActivity returns the mirrored issue and pull request counts for /insight.
func (d *DB) RepoActivity(ctx context.Context, repoID string) (issues int, pulls int, err error) {
	if d == nil || d.SQL == nil {
		return 0, 0, sql.ErrConnDone
	}
	const q = `
SELECT
  (SELECT count(*) FROM issues WHERE repo_id=$1::uuid),
  (SELECT count(*) FROM pull_requests WHERE repo_id=$1::uuid)`
	err = d.SQL.QueryRowContext(ctx, q, repoID).Scan(&issues, &pulls)
	return
}

// UpsertRepo creates the mirror row on first sighting and refreshes mutable
// fields on later events. The (application, external id) key absorbs
// duplicate deliveries.
func (d *DB) UpsertRepo(ctx context.Context, codeApplicationID string, externalID int64, name, description string, extra []byte) (*Repo, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `
INSERT INTO repos (code_application_id, repo_external_id, name, description, extra, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, now(), now())
ON CONFLICT (code_application_id, repo_external_id) DO UPDATE SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  extra = EXCLUDED.extra,
  updated_at = now()
RETURNING ` + repoCols
	return scanRepo(d.SQL.QueryRowContext(ctx, q, codeApplicationID, externalID, name, nullIfEmpty(description), nullableJSON(extra)))
}

func (d *DB) SetRepoMessageID(ctx context.Context, repoID, messageID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE repos SET message_id=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, repoID, nullIfEmpty(messageID))
	return err
}

func (d *DB) SetRepoStatus(ctx context.Context, repoID, status string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE repos SET status=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, repoID, status)
	return err
}

func (d *DB) RenameRepo(ctx context.Context, repoID, name string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE repos SET name=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, repoID, name)
	return err
}

func (d *DB) SetRepoDescription(ctx context.Context, repoID, description string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE repos SET description=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, repoID, nullIfEmpty(description))
	return err
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
