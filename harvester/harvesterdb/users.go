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

// Users stores user profiles keyed by their upstream identifier.
type Users interface {
	// Upsert creates the user or reassigns every fetched column of the
	// existing row. The locally derived avatar_key is left alone.
	Upsert(ctx context.Context, user *github.User) error
	// Get returns a user by id.
	Get(ctx context.Context, id int64) (*User, error)
	// GetByLogin returns a user by login.
	GetByLogin(ctx context.Context, login string) (*User, error)
	// SetAvatarKey records the blob key the user's avatar is stored under.
	SetAvatarKey(ctx context.Context, id int64, key string) error
}

// User is the stored projection of a user row that readers need: identity,
// freshness and the verbatim profile.
type User struct {
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

type users struct {
	db *database
}

// Upsert creates the user or reassigns every fetched column of the existing
// row and bumps updated_at, which drives the staleness guard.
func (users *users) Upsert(ctx context.Context, user *github.User) (err error) {
	defer mon.Task()(&ctx)(&err)

	if user == nil || user.ID == 0 {
		return Error.New("user id missing")
	}

	query, args := upsertSQL("users", []column{
		{"id", user.ID},
		{"login", user.Login},
		{"node_id", user.NodeID},
		{"avatar_url", user.AvatarURL},
		{"gravatar_id", user.GravatarID},
		{"url", user.URL},
		{"html_url", user.HTMLURL},
		{"followers_url", user.FollowersURL},
		{"following_url", user.FollowingURL},
		{"gists_url", user.GistsURL},
		{"starred_url", user.StarredURL},
		{"subscriptions_url", user.SubscriptionsURL},
		{"organizations_url", user.OrganizationsURL},
		{"repos_url", user.ReposURL},
		{"events_url", user.EventsURL},
		{"received_events_url", user.ReceivedEventsURL},
		{"type", user.Type},
		{"site_admin", user.SiteAdmin},
		{"name", user.Name},
		{"company", user.Company},
		{"blog", user.Blog},
		{"location", user.Location},
		{"email", user.Email},
		{"hireable", user.Hireable},
		{"bio", user.Bio},
		{"twitter_username", user.TwitterUsername},
		{"public_repos", user.PublicRepos},
		{"public_gists", user.PublicGists},
		{"followers", user.Followers},
		{"following", user.Following},
		{"github_created_at", user.CreatedAt},
		{"github_updated_at", user.UpdatedAt},
		{"raw", rawJSON(user.Raw)},
	})

	_, err = users.db.db.ExecContext(ctx, query, args...)
	return wrapErr(err)
}

const userColumns = `id, login, COALESCE(avatar_url, ''), COALESCE(avatar_key, ''),
	github_created_at, github_updated_at, raw, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var githubCreatedAt, githubUpdatedAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Login, &user.AvatarURL, &user.AvatarKey,
		&githubCreatedAt, &githubUpdatedAt, &user.Raw,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubCreatedAt.Valid {
		user.GithubCreatedAt = &githubCreatedAt.Time
	}
	if githubUpdatedAt.Valid {
		user.GithubUpdatedAt = &githubUpdatedAt.Time
	}
	return &user, nil
}

// Get returns a user by id.
func (users *users) Get(ctx context.Context, id int64) (_ *User, err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := scanUser(users.db.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("user %d", id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return user, nil
}

// GetByLogin returns a user by login.
func (users *users) GetByLogin(ctx context.Context, login string) (_ *User, err error) {
	defer mon.Task()(&ctx)(&err)

	user, err := scanUser(users.db.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login = $1`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("user %q", login)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return user, nil
}

// SetAvatarKey records the blob key the user's avatar is stored under.
// updated_at stays untouched, it tracks profile refreshes only.
func (users *users) SetAvatarKey(ctx context.Context, id int64, key string) (err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := users.db.db.ExecContext(ctx,
		`UPDATE users SET avatar_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return wrapErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Error.Wrap(err)
	}
	if affected == 0 {
		return ErrNotFound.New("user %d", id)
	}
	return nil
}
