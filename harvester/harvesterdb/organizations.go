// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package harvesterdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hubtide/hubtide/pkg/github"
)

// Organizations stores organization profiles keyed by their upstream
// identifier.
type Organizations interface {
	// Upsert creates the organization or reassigns every fetched column
	// of the existing row. The locally derived avatar_key is left alone.
	Upsert(ctx context.Context, org *github.Organization) error
	// Get returns an organization by id.
	Get(ctx context.Context, id int64) (*Organization, error)
	// GetByLogin returns an organization by login.
	GetByLogin(ctx context.Context, login string) (*Organization, error)
	// SetAvatarKey records the blob key the organization's avatar is
	// stored under.
	SetAvatarKey(ctx context.Context, id int64, key string) error
}

// Organization is the stored projection of an organization row.
type Organization struct {
	ID              int64
	Login           string
	AvatarURL       string
	AvatarKey       string
	GithubCreatedAt *time.Time
	GithubUpdatedAt *time.Time
	Raw             []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type organizations struct {
	db *database
}

// Upsert creates the organization or reassigns every fetched column of the
// existing row and bumps updated_at.
func (orgs *organizations) Upsert(ctx context.Context, org *github.Organization) (err error) {
	defer mon.Task()(&ctx)(&err)

	if org == nil || org.ID == 0 {
		return Error.New("organization id missing")
	}

	query, args := upsertSQL("organizations", []column{
		{"id", org.ID},
		{"login", org.Login},
		{"node_id", org.NodeID},
		{"url", org.URL},
		{"repos_url", org.ReposURL},
		{"events_url", org.EventsURL},
		{"hooks_url", org.HooksURL},
		{"issues_url", org.IssuesURL},
		{"members_url", org.MembersURL},
		{"public_members_url", org.PublicMembersURL},
		{"avatar_url", org.AvatarURL},
		{"description", org.Description},
		{"name", org.Name},
		{"company", org.Company},
		{"blog", org.Blog},
		{"location", org.Location},
		{"email", org.Email},
		{"twitter_username", org.TwitterUsername},
		{"is_verified", org.IsVerified},
		{"has_organization_projects", org.HasOrgProjects},
		{"has_repository_projects", org.HasRepoProjects},
		{"public_repos", org.PublicRepos},
		{"public_gists", org.PublicGists},
		{"followers", org.Followers},
		{"following", org.Following},
		{"html_url", org.HTMLURL},
		{"type", org.Type},
		{"github_created_at", org.CreatedAt},
		{"github_updated_at", org.UpdatedAt},
		{"raw", rawJSON(org.Raw)},
	})

	_, err = orgs.db.db.ExecContext(ctx, query, args...)
	return wrapErr(err)
}

const organizationColumns = `id, login, COALESCE(avatar_url, ''), COALESCE(avatar_key, ''),
	github_created_at, github_updated_at, raw, created_at, updated_at`

func scanOrganization(row *sql.Row) (*Organization, error) {
	var org Organization
	var githubCreatedAt, githubUpdatedAt sql.NullTime
	err := row.Scan(
		&org.ID, &org.Login, &org.AvatarURL, &org.AvatarKey,
		&githubCreatedAt, &githubUpdatedAt, &org.Raw,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubCreatedAt.Valid {
		org.GithubCreatedAt = &githubCreatedAt.Time
	}
	if githubUpdatedAt.Valid {
		org.GithubUpdatedAt = &githubUpdatedAt.Time
	}
	return &org, nil
}

// Get returns an organization by id.
func (orgs *organizations) Get(ctx context.Context, id int64) (_ *Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	org, err := scanOrganization(orgs.db.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("organization %d", id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return org, nil
}

// GetByLogin returns an organization by login.
func (orgs *organizations) GetByLogin(ctx context.Context, login string) (_ *Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	org, err := scanOrganization(orgs.db.db.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE login = $1`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("organization %q", login)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return org, nil
}

// SetAvatarKey records the blob key the organization's avatar is stored
// under.
func (orgs *organizations) SetAvatarKey(ctx context.Context, id int64, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := orgs.db.db.ExecContext(ctx,
		`UPDATE organizations SET avatar_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return ErrNotFound.New("organization %d", id)
	}
	return nil
}
