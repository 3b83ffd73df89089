package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	PlatformGitHub = "github"
	PlatformLark   = "lark"
)

type User struct {
	ID        string
	Name      string
	Email     sql.NullString
	Avatar    sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BindUser links one platform identity (GitHub login or Lark open_id) to an
// internal user.
type BindUser struct {
	ID          string
	UserID      string
	Platform    string
	PlatformID  string
	AccessToken sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Team struct {
	ID          string
	Name        string
	Description sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TeamMember pairs a chat identity with a code-platform identity inside a team.
type TeamMember struct {
	ID         string
	TeamID     string
	IMUserID   sql.NullString
	CodeUserID sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (d *DB) GetBindUser(ctx context.Context, platform, platformID string) (*BindUser, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, user_id::text, platform, platform_id, access_token, created_at, updated_at
FROM bind_users WHERE platform=$1 AND platform_id=$2 LIMIT 1`
	var b BindUser
	err := d.SQL.QueryRowContext(ctx, q, platform, platformID).Scan(&b.ID, &b.UserID, &b.Platform, &b.PlatformID, &b.AccessToken, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// EnsureBindUser finds or creates the internal user + binding for a platform
// identity. Replays (duplicate webhook deliveries) find the existing row.
func (d *DB) EnsureBindUser(ctx context.Context, platform, platformID, name string) (*BindUser, bool, error) {
	if d == nil || d.SQL == nil {
		return nil, false, sql.ErrConnDone
	}
	if b, err := d.GetBindUser(ctx, platform, platformID); err == nil {
		return b, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	tx, err := d.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var userID string
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO users (name, created_at, updated_at) VALUES ($1, now(), now()) RETURNING id::text`,
		name).Scan(&userID); err != nil {
		return nil, false, err
	}
	var b BindUser
	const ins = `
INSERT INTO bind_users (user_id, platform, platform_id, created_at, updated_at)
VALUES ($1::uuid, $2, $3, now(), now())
ON CONFLICT (platform, platform_id) DO UPDATE SET updated_at = now()
RETURNING id::text, user_id::text, platform, platform_id, access_token, created_at, updated_at`
	if err := tx.QueryRowContext(ctx, ins, userID, platform, platformID).
		Scan(&b.ID, &b.UserID, &b.Platform, &b.PlatformID, &b.AccessToken, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, false, err
	}
	if b.UserID != userID {
		// Lost the insert race. The binding already points at another user,
		// so the user row created above must not be committed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1::uuid`, userID); err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &b, b.UserID == userID, nil
}

// LinkBindUser attaches a platform identity to an existing internal user,
// rebinding it when the identity was previously attached elsewhere. The OAuth
// callback uses this to join a Lark identity onto a GitHub user.
func (d *DB) LinkBindUser(ctx context.Context, userID, platform, platformID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `
INSERT INTO bind_users (user_id, platform, platform_id, created_at, updated_at)
VALUES ($1::uuid, $2, $3, now(), now())
ON CONFLICT (platform, platform_id) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = now()`
	_, err := d.SQL.ExecContext(ctx, q, userID, platform, platformID)
	return err
}

// SetBindUserToken stores a per-user OAuth token.
func (d *DB) SetBindUserToken(ctx context.Context, platform, platformID, accessToken string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE bind_users SET access_token=$3, updated_at=now() WHERE platform=$1 AND platform_id=$2`
	_, err := d.SQL.ExecContext(ctx, q, platform, platformID, nullIfEmpty(accessToken))
	return err
}

func (d *DB) ListTeams(ctx context.Context) ([]Team, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, name, description, created_at, updated_at FROM teams ORDER BY created_at`
	rows, err := d.SQL.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *DB) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, im_user_id::text, code_user_id::text, created_at, updated_at
FROM team_members WHERE team_id=$1::uuid ORDER BY created_at`
	rows, err := d.SQL.QueryContext(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.IMUserID, &m.CodeUserID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddTeamMember links a code-platform binding into a team. Duplicate adds
// (replayed member_added webhooks) are no-ops.
func (d *DB) AddTeamMember(ctx context.Context, teamID, codeUserID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `
INSERT INTO team_members (team_id, code_user_id, created_at, updated_at)
VALUES ($1::uuid, $2::uuid, now(), now())
ON CONFLICT (team_id, code_user_id) DO NOTHING`
	_, err := d.SQL.ExecContext(ctx, q, teamID, codeUserID)
	return err
}

// BindTeamMemberIM attaches a chat identity to every team member row carrying
// the given code-platform binding. The OAuth callback calls this once both
// sides of an identity are known.
func (d *DB) BindTeamMemberIM(ctx context.Context, codeUserID, imUserID string) error {
	if d == nil || d.SQL == nil {
		return sql.ErrConnDone
	}
	const q = `UPDATE team_members SET im_user_id=$2::uuid, updated_at=now() WHERE code_user_id=$1::uuid`
	_, err := d.SQL.ExecContext(ctx, q, codeUserID, imUserID)
	return err
}

// ResolveCodeLogin maps a chat sender (Lark open_id) to the GitHub login bound
// to the same internal user. sql.ErrNoRows means the user never bound GitHub.
func (d *DB) ResolveCodeLogin(ctx context.Context, openID string) (login string, token string, err error) {
	if d == nil || d.SQL == nil {
		return "", "", sql.ErrConnDone
	}
	const q = `
SELECT g.platform_id, COALESCE(g.access_token, '')
FROM bind_users l
JOIN bind_users g ON g.user_id = l.user_id AND g.platform = 'github'
WHERE l.platform = 'lark' AND l.platform_id = $1
LIMIT 1`
	err = d.SQL.QueryRowContext(ctx, q, openID).Scan(&login, &token)
	return
}

// ResolveIMOpenID is the inverse of ResolveCodeLogin: GitHub login to the Lark
// open_id bound to the same internal user.
func (d *DB) ResolveIMOpenID(ctx context.Context, login string) (string, error) {
	if d == nil || d.SQL == nil {
		return "", sql.ErrConnDone
	}
	const q = `
SELECT l.platform_id
FROM bind_users g
JOIN bind_users l ON l.user_id = g.user_id AND l.platform = 'lark'
WHERE g.platform = 'github' AND g.platform_id = $1
LIMIT 1`
	var openID string
	err := d.SQL.QueryRowContext(ctx, q, login).Scan(&openID)
	return openID, err
}
