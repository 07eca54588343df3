// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package testdb implements harvesterdb.DB in memory for tests.
//
// The savers mirror the semantics of the Postgres implementation: push
// events are insert-or-ignore on their id, profile upserts reassign every
// fetched column while keeping the locally derived avatar key and the
// original created_at.
package testdb

import (
	"context"
	"sync"
	"time"

	"github.com/hubtide/hubtide/harvester/harvesterdb"
	"github.com/hubtide/hubtide/pkg/github"
)

// DB implements harvesterdb.DB with maps.
type DB struct {
	mu sync.Mutex

	pushEvents    map[string]*harvesterdb.PushEvent
	users         map[int64]*harvesterdb.User
	repositories  map[int64]*harvesterdb.Repository
	organizations map[int64]*harvesterdb.Organization

	forcedError error
	nowFn       func() time.Time
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		pushEvents:    map[string]*harvesterdb.PushEvent{},
		users:         map[int64]*harvesterdb.User{},
		repositories:  map[int64]*harvesterdb.Repository{},
		organizations: map[int64]*harvesterdb.Organization{},
	}
}

// SetError makes every following operation fail with err. A nil err turns
// the failures off again.
func (db *DB) SetError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.forcedError = err
}

// SetNow overrides the time source used for local timestamps. Tests only.
func (db *DB) SetNow(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nowFn = now
}

func (db *DB) now() time.Time {
	if db.nowFn != nil {
		return db.nowFn()
	}
	return time.Now()
}

// PushEvents returns the push event store.
func (db *DB) PushEvents() harvesterdb.PushEvents { return &pushEvents{db: db} }

// Users returns the user store.
func (db *DB) Users() harvesterdb.Users { return &users{db: db} }

// Repositories returns the repository store.
func (db *DB) Repositories() harvesterdb.Repositories { return &repositories{db: db} }

// Organizations returns the organization store.
func (db *DB) Organizations() harvesterdb.Organizations { return &organizations{db: db} }

// MigrateToLatest is a no-op, the in-memory schema is always current.
func (db *DB) MigrateToLatest(ctx context.Context) error { return nil }

// Close is a no-op.
func (db *DB) Close() error { return nil }

var _ harvesterdb.DB = (*DB)(nil)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// rawJSON mirrors the real adapter: empty payloads store as an empty
// object, everything else verbatim.
func rawJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return append([]byte(nil), raw...)
}

type pushEvents struct {
	db *DB
}

func (events *pushEvents) Save(ctx context.Context, event *github.Event) (*harvesterdb.PushEvent, error) {
	if event == nil || event.ID == "" {
		return nil, harvesterdb.Error.New("event id missing")
	}
	payload, err := event.PushPayload()
	if err != nil {
		return nil, harvesterdb.Error.Wrap(err)
	}

	events.db.mu.Lock()
	defer events.db.mu.Unlock()
	if err := events.db.forcedError; err != nil {
		return nil, err
	}

	if existing, ok := events.db.pushEvents[event.ID]; ok {
		return clonePushEvent(existing), nil
	}

	var orgID *int64
	if event.Org != nil {
		id := event.Org.ID
		orgID = &id
	}
	stored := &harvesterdb.PushEvent{
		ID:              event.ID,
		ActorID:         event.Actor.ID,
		RepoID:          event.Repo.ID,
		OrgID:           orgID,
		PushID:          payload.PushID,
		Ref:             payload.Ref,
		Head:            payload.Head,
		Before:          payload.Before,
		Raw:             rawJSON(event.Payload),
		GithubCreatedAt: cloneTime(event.CreatedAt),
		CreatedAt:       events.db.now(),
	}
	events.db.pushEvents[event.ID] = stored
	return clonePushEvent(stored), nil
}

func (events *pushEvents) Get(ctx context.Context, id string) (*harvesterdb.PushEvent, error) {
	events.db.mu.Lock()
	defer events.db.mu.Unlock()
	if err := events.db.forcedError; err != nil {
		return nil, err
	}

	event, ok := events.db.pushEvents[id]
	if !ok {
		return nil, harvesterdb.ErrNotFound.New("push event %q", id)
	}
	return clonePushEvent(event), nil
}

func clonePushEvent(event *harvesterdb.PushEvent) *harvesterdb.PushEvent {
	clone := *event
	clone.OrgID = cloneInt64(event.OrgID)
	clone.GithubCreatedAt = cloneTime(event.GithubCreatedAt)
	clone.Raw = append([]byte(nil), event.Raw...)
	return &clone
}

type users struct {
	db *DB
}

func (users *users) Upsert(ctx context.Context, user *github.User) error {
	if user == nil || user.ID == 0 {
		return harvesterdb.Error.New("user id missing")
	}

	users.db.mu.Lock()
	defer users.db.mu.Unlock()
	if err := users.db.forcedError; err != nil {
		return err
	}

	now := users.db.now()
	row, ok := users.db.users[user.ID]
	if !ok {
		row = &harvesterdb.User{ID: user.ID, CreatedAt: now}
		users.db.users[user.ID] = row
	}
	row.Login = user.Login
	row.AvatarURL = user.AvatarURL
	row.GithubCreatedAt = cloneTime(user.CreatedAt)
	row.GithubUpdatedAt = cloneTime(user.UpdatedAt)
	row.Raw = rawJSON(user.Raw)
	row.UpdatedAt = now
	return nil
}

func (users *users) Get(ctx context.Context, id int64) (*harvesterdb.User, error) {
	users.db.mu.Lock()
	defer users.db.mu.Unlock()
	if err := users.db.forcedError; err != nil {
		return nil, err
	}

	user, ok := users.db.users[id]
	if !ok {
		return nil, harvesterdb.ErrNotFound.New("user %d", id)
	}
	return cloneUser(user), nil
}

func (users *users) GetByLogin(ctx context.Context, login string) (*harvesterdb.User, error) {
	users.db.mu.Lock()
	defer users.db.mu.Unlock()
	if err := users.db.forcedError; err != nil {
		return nil, err
	}

	for _, user := range users.db.users {
		if user.Login == login {
			return cloneUser(user), nil
		}
	}
	return nil, harvesterdb.ErrNotFound.New("user %q", login)
}

func (users *users) SetAvatarKey(ctx context.Context, id int64, key string) error {
	users.db.mu.Lock()
	defer users.db.mu.Unlock()
	if err := users.db.forcedError; err != nil {
		return err
	}

	user, ok := users.db.users[id]
	if !ok {
		return harvesterdb.ErrNotFound.New("user %d", id)
	}
	user.AvatarKey = key
	return nil
}

func cloneUser(user *harvesterdb.User) *harvesterdb.User {
	clone := *user
	clone.GithubCreatedAt = cloneTime(user.GithubCreatedAt)
	clone.GithubUpdatedAt = cloneTime(user.GithubUpdatedAt)
	clone.Raw = append([]byte(nil), user.Raw...)
	return &clone
}

type repositories struct {
	db *DB
}

func (repos *repositories) Upsert(ctx context.Context, repo *github.Repository) error {
	if repo == nil || repo.ID == 0 {
		return harvesterdb.Error.New("repository id missing")
	}

	repos.db.mu.Lock()
	defer repos.db.mu.Unlock()
	if err := repos.db.forcedError; err != nil {
		return err
	}

	now := repos.db.now()
	row, ok := repos.db.repositories[repo.ID]
	if !ok {
		row = &harvesterdb.Repository{ID: repo.ID, CreatedAt: now}
		repos.db.repositories[repo.ID] = row
	}
	row.FullName = repo.FullName
	if repo.Owner != nil {
		id := repo.Owner.ID
		row.OwnerID = &id
	} else {
		row.OwnerID = nil
	}
	row.GithubPushedAt = cloneTime(repo.PushedAt)
	row.GithubCreatedAt = cloneTime(repo.CreatedAt)
	row.GithubUpdatedAt = cloneTime(repo.UpdatedAt)
	row.Raw = rawJSON(repo.Raw)
	row.UpdatedAt = now
	return nil
}

func (repos *repositories) Get(ctx context.Context, id int64) (*harvesterdb.Repository, error) {
	repos.db.mu.Lock()
	defer repos.db.mu.Unlock()
	if err := repos.db.forcedError; err != nil {
		return nil, err
	}

	repo, ok := repos.db.repositories[id]
	if !ok {
		return nil, harvesterdb.ErrNotFound.New("repository %d", id)
	}
	return cloneRepository(repo), nil
}

func (repos *repositories) GetByFullName(ctx context.Context, owner, name string) (*harvesterdb.Repository, error) {
	repos.db.mu.Lock()
	defer repos.db.mu.Unlock()
	if err := repos.db.forcedError; err != nil {
		return nil, err
	}

	fullName := owner + "/" + name
	for _, repo := range repos.db.repositories {
		if repo.FullName == fullName {
			return cloneRepository(repo), nil
		}
	}
	return nil, harvesterdb.ErrNotFound.New("repository %q", fullName)
}

func cloneRepository(repo *harvesterdb.Repository) *harvesterdb.Repository {
	clone := *repo
	clone.OwnerID = cloneInt64(repo.OwnerID)
	clone.GithubPushedAt = cloneTime(repo.GithubPushedAt)
	clone.GithubCreatedAt = cloneTime(repo.GithubCreatedAt)
	clone.GithubUpdatedAt = cloneTime(repo.GithubUpdatedAt)
	clone.Raw = append([]byte(nil), repo.Raw...)
	return &clone
}

type organizations struct {
	db *DB
}

func (orgs *organizations) Upsert(ctx context.Context, org *github.Organization) error {
	if org == nil || org.ID == 0 {
		return harvesterdb.Error.New("organization id missing")
	}

	orgs.db.mu.Lock()
	defer orgs.db.mu.Unlock()
	if err := orgs.db.forcedError; err != nil {
		return err
	}

	now := orgs.db.now()
	row, ok := orgs.db.organizations[org.ID]
	if !ok {
		row = &harvesterdb.Organization{ID: org.ID, CreatedAt: now}
		orgs.db.organizations[org.ID] = row
	}
	row.Login = org.Login
	row.AvatarURL = org.AvatarURL
	row.GithubCreatedAt = cloneTime(org.CreatedAt)
	row.GithubUpdatedAt = cloneTime(org.UpdatedAt)
	row.Raw = rawJSON(org.Raw)
	row.UpdatedAt = now
	return nil
}

func (orgs *organizations) Get(ctx context.Context, id int64) (*harvesterdb.Organization, error) {
	orgs.db.mu.Lock()
	defer orgs.db.mu.Unlock()
	if err := orgs.db.forcedError; err != nil {
		return nil, err
	}

	org, ok := orgs.db.organizations[id]
	if !ok {
		return nil, harvesterdb.ErrNotFound.New("organization %d", id)
	}
	return cloneOrganization(org), nil
}

func (orgs *organizations) GetByLogin(ctx context.Context, login string) (*harvesterdb.Organization, error) {
	orgs.db.mu.Lock()
	defer orgs.db.mu.Unlock()
	if err := orgs.db.forcedError; err != nil {
		return nil, err
	}

	for _, org := range orgs.db.organizations {
		if org.Login == login {
			return cloneOrganization(org), nil
		}
	}
	return nil, harvesterdb.ErrNotFound.New("organization %q", login)
}

func (orgs *organizations) SetAvatarKey(ctx context.Context, id int64, key string) error {
	orgs.db.mu.Lock()
	defer orgs.db.mu.Unlock()
	if err := orgs.db.forcedError; err != nil {
		return err
	}

	org, ok := orgs.db.organizations[id]
	if !ok {
		return harvesterdb.ErrNotFound.New("organization %d", id)
	}
	org.AvatarKey = key
	return nil
}

func cloneOrganization(org *harvesterdb.Organization) *harvesterdb.Organization {
	clone := *org
	clone.GithubCreatedAt = cloneTime(org.GithubCreatedAt)
	clone.GithubUpdatedAt = cloneTime(org.GithubUpdatedAt)
	clone.Raw = append([]byte(nil), org.Raw...)
	return &clone
}
