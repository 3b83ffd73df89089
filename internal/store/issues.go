package store

import (
	"context"
	"database/sql"
	"time"
)

// Issue mirrors one external issue, keyed by (repo_id, issue_number).
type Issue struct {
	ID          string
	RepoID      string
	IssueNumber int
	Title       string
	Description sql.NullString
	MessageID   sql.NullString
	Extra       []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PullRequest mirrors one external pull request, keyed by
// (repo_id, pull_request_number).
type PullRequest struct {
	ID                string
	RepoID            string
	PullRequestNumber int
	Title             string
	Description       sql.NullString
	HeadRef           sql.NullString
	MessageID         sql.NullString
	Extra             []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const issueCols = `id::text, repo_id::text, issue_number, title, description, message_id, extra, created_at, updated_at`

func scanIssue(row *sql.Row) (*Issue, error) {
	var i Issue
	err := row.Scan(&i.ID, &i.RepoID, &i.IssueNumber, &i.Title, &i.Description, &i.MessageID, &i.Extra, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (d *DB) GetIssue(ctx context.Context, repoID string, number int) (*Issue, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + issueCols + ` FROM issues WHERE repo_id=$1::uuid AND issue_number=$2 LIMIT 1`
	return scanIssue(d.SQL.QueryRowContext(ctx, q, repoID, number))
}

// CreateIssueIfAbsent inserts the mirror row for an "opened" event. The second
// delivery of the same event finds the row and reports created=false.
func (d *DB) CreateIssueIfAbsent(ctx context.Context, repoID string, number int, title, description string, extra []byte) (*Issue, bool, error) {
	if d == nil || d.SQL == nil {
		return nil, false, sql.ErrConnDone
	}
	const ins = `
INSERT INTO issues (repo_id, issue_number, title, description, extra, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, now(), now())
ON CONFLICT (repo_id, issue_number) DO NOTHING
RETURNING ` + issueCols
	i, err := scanIssue(d.SQL.QueryRowContext(ctx, ins, repoID, number, title, nullIfEmpty(description), nullableJSON(extra)))
	if err == nil {
		return i, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}
	i, err = d.GetIssue(ctx, repoID, number)
	return i, false, err
}

// UpdateIssue refreshes mutable fields; it never creates. Returns
// sql.ErrNoRows when the issue was never mirrored.
func (d *DB) UpdateIssue(ctx context.Context, repoID string, number int, title, description string, extra []byte) (*Issue, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `
UPDATE issues SET title=$3, description=$4, extra=COALESCE($5, extra), updated_at=now()
WHERE repo_id=$1::uuid AND issue_number=$2
RETURNING ` + issueCols
	return scanIssue(d.SQL.QueryRowContext(ctx, q, repoID, number, title, nullIfEmpty(description), nullableJSON(extra)))
}

func (d *DB) SetIssueMessageID(ctx context.Context, issueID, messageID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE issues SET message_id=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, issueID, nullIfEmpty(messageID))
	return err
}

// FindIssueByMessageID maps a chat thread root back to its issue, used when a
// chat message inside an issue thread carries a command like /close.
func (d *DB) FindIssueByMessageID(ctx context.Context, messageID string) (*Issue, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + issueCols + ` FROM issues WHERE message_id=$1 LIMIT 1`
	return scanIssue(d.SQL.QueryRowContext(ctx, q, messageID))
}

const prCols = `id::text, repo_id::text, pull_request_number, title, description, head_ref, message_id, extra, created_at, updated_at`

func scanPR(row *sql.Row) (*PullRequest, error) {
	var p PullRequest
	err := row.Scan(&p.ID, &p.RepoID, &p.PullRequestNumber, &p.Title, &p.Description, &p.HeadRef, &p.MessageID, &p.Extra, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *DB) GetPullRequest(ctx context.Context, repoID string, number int) (*PullRequest, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + prCols + ` FROM pull_requests WHERE repo_id=$1::uuid AND pull_request_number=$2 LIMIT 1`
	return scanPR(d.SQL.QueryRowContext(ctx, q, repoID, number))
}

func (d *DB) CreatePullRequestIfAbsent(ctx context.Context, repoID string, number int, title, description, headRef string, extra []byte) (*PullRequest, bool, error) {
	if d == nil || d.SQL == nil {
		return nil, false, sql.ErrConnDone
	}
	const ins = `
INSERT INTO pull_requests (repo_id, pull_request_number, title, description, head_ref, extra, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (repo_id, pull_request_number) DO NOTHING
RETURNING ` + prCols
	p, err := scanPR(d.SQL.QueryRowContext(ctx, ins, repoID, number, title, nullIfEmpty(description), nullIfEmpty(headRef), nullableJSON(extra)))
	if err == nil {
		return p, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}
	p, err = d.GetPullRequest(ctx, repoID, number)
	return p, false, err
}

func (d *DB) UpdatePullRequest(ctx context.Context, repoID string, number int, title, description, headRef string, extra []byte) (*PullRequest, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `
UPDATE pull_requests SET title=$3, description=$4, head_ref=COALESCE($5, head_ref), extra=COALESCE($6, extra), updated_at=now()
WHERE repo_id=$1::uuid AND pull_request_number=$2
RETURNING ` + prCols
	return scanPR(d.SQL.QueryRowContext(ctx, q, repoID, number, title, nullIfEmpty(description), nullIfEmpty(headRef), nullableJSON(extra)))
}

func (d *DB) SetPullRequestMessageID(ctx context.Context, prID, messageID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE pull_requests SET message_id=$2, updated_at=now() WHERE id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, prID, nullIfEmpty(messageID))
	return err
}

// FindPullRequestByHeadRef locates the PR whose head branch matches a pushed
// ref within one repo. sql.ErrNoRows means the push targets no tracked PR.
func (d *DB) FindPullRequestByHeadRef(ctx context.Context, repoID, headRef string) (*PullRequest, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + prCols + ` FROM pull_requests WHERE repo_id=$1::uuid AND head_ref=$2 ORDER BY updated_at DESC LIMIT 1`
	return scanPR(d.SQL.QueryRowContext(ctx, q, repoID, headRef))
}

func (d *DB) FindPullRequestByMessageID(ctx context.Context, messageID string) (*PullRequest, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT ` + prCols + ` FROM pull_requests WHERE message_id=$1 LIMIT 1`
	return scanPR(d.SQL.QueryRowContext(ctx, q, messageID))
}
