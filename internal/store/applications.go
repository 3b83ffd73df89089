package store

import (
	"context"
	"database/sql"
	"time"
)

// IMApplication is one installed Lark bot application, scoped to a team.
type IMApplication struct {
	ID                string
	TeamID            string
	AppID             string
	AppSecret         string
	EncryptKey        sql.NullString
	VerificationToken sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CodeApplication is one GitHub App installation, scoped to a team.
type CodeApplication struct {
	ID             string
	TeamID         sql.NullString
	InstallationID int64
	OrgName        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (d *DB) GetIMApplicationByAppID(ctx context.Context, appID string) (*IMApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, app_id, app_secret, encrypt_key, verification_token, created_at, updated_at
FROM im_applications WHERE app_id=$1 LIMIT 1`
	var a IMApplication
	err := d.SQL.QueryRowContext(ctx, q, appID).Scan(&a.ID, &a.TeamID, &a.AppID, &a.AppSecret, &a.EncryptKey, &a.VerificationToken, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) GetIMApplicationByID(ctx context.Context, id string) (*IMApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, app_id, app_secret, encrypt_key, verification_token, created_at, updated_at
FROM im_applications WHERE id=$1::uuid LIMIT 1`
	var a IMApplication
	err := d.SQL.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.TeamID, &a.AppID, &a.AppSecret, &a.EncryptKey, &a.VerificationToken, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListIMApplications returns every installed bot application; the contact
// sweep walks this list once per interval.
func (d *DB) ListIMApplications(ctx context.Context) ([]IMApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, app_id, app_secret, encrypt_key, verification_token, created_at, updated_at
FROM im_applications ORDER BY created_at`
	rows, err := d.SQL.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IMApplication
	for rows.Next() {
		var a IMApplication
		if err := rows.Scan(&a.ID, &a.TeamID, &a.AppID, &a.AppSecret, &a.EncryptKey, &a.VerificationToken, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetIMApplicationForTeam returns the bot application serving a team.
func (d *DB) GetIMApplicationForTeam(ctx context.Context, teamID string) (*IMApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, app_id, app_secret, encrypt_key, verification_token, created_at, updated_at
FROM im_applications WHERE team_id=$1::uuid ORDER BY created_at LIMIT 1`
	var a IMApplication
	err := d.SQL.QueryRowContext(ctx, q, teamID).Scan(&a.ID, &a.TeamID, &a.AppID, &a.AppSecret, &a.EncryptKey, &a.VerificationToken, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) GetCodeApplicationByID(ctx context.Context, id string) (*CodeApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, installation_id, org_name, created_at, updated_at
FROM code_applications WHERE id=$1::uuid LIMIT 1`
	var a CodeApplication
	err := d.SQL.QueryRowContext(ctx, q, id).Scan(&a.ID, &a.TeamID, &a.InstallationID, &a.OrgName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (d *DB) GetCodeApplicationByInstallation(ctx context.Context, installationID int64) (*CodeApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, installation_id, org_name, created_at, updated_at
FROM code_applications WHERE installation_id=$1 LIMIT 1`
	var a CodeApplication
	err := d.SQL.QueryRowContext(ctx, q, installationID).Scan(&a.ID, &a.TeamID, &a.InstallationID, &a.OrgName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetCodeApplicationByOrg finds the installation serving an org or user
// account by its GitHub login.
func (d *DB) GetCodeApplicationByOrg(ctx context.Context, orgName string) (*CodeApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `SELECT id::text, team_id::text, installation_id, org_name, created_at, updated_at
FROM code_applications WHERE org_name=$1 LIMIT 1`
	var a CodeApplication
	err := d.SQL.QueryRowContext(ctx, q, orgName).Scan(&a.ID, &a.TeamID, &a.InstallationID, &a.OrgName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertCodeApplication records a GitHub App installation on first contact and
// refreshes the org name on later ones.
func (d *DB) UpsertCodeApplication(ctx context.Context, installationID int64, orgName string) (*CodeApplication, error) {
	if d == nil || d.SQL == nil {
		return nil, sql.ErrConnDone
	}
	const q = `
INSERT INTO code_applications (installation_id, org_name, created_at, updated_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (installation_id) DO UPDATE SET org_name = EXCLUDED.org_name, updated_at = now()
RETURNING id::text, team_id::text, installation_id, org_name, created_at, updated_at`
	var a CodeApplication
	err := d.SQL.QueryRowContext(ctx, q, installationID, orgName).Scan(&a.ID, &a.TeamID, &a.InstallationID, &a.OrgName, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
