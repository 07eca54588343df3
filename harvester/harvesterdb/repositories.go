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

// Repositories stores repositories keyed by their upstream identifier.
type Repositories interface {
	// Upsert creates the repository or reassigns every fetched column of
	// the existing row.
	Upsert(ctx context.Context, repo *github.Repository) error
	// Get returns a repository by id.
	Get(ctx context.Context, id int64) (*Repository, error)
	// GetByFullName returns a repository by its "owner/name" pair.
	GetByFullName(ctx context.Context, owner, name string) (*Repository, error)
}

// Repository is the stored projection of a repository row.
type Repository struct {
	ID              int64
	FullName        string
	OwnerID         *int64
	GithubPushedAt  *time.Time
	GithubCreatedAt *time.Time
	GithubUpdatedAt *time.Time
	Raw             []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type repositories struct {
	db *database
}

// Upsert creates the repository or reassigns every fetched column of the
// existing row and bumps updated_at. The nested owner object and license
// object are flattened into owner_ and license_ columns.
func (repos *repositories) Upsert(ctx context.Context, repo *github.Repository) (err error) {
	defer mon.Task()(&ctx)(&err)

	if repo == nil || repo.ID == 0 {
		return Error.New("repository id missing")
	}

	var ownerID *int64
	var ownerLogin, ownerType *string
	if repo.Owner != nil {
		id, login, kind := repo.Owner.ID, repo.Owner.Login, repo.Owner.Type
		ownerID, ownerLogin, ownerType = &id, &login, &kind
	}

	var licenseKey, licenseName, licenseSPDX, licenseURL, licenseNodeID *string
	if repo.License != nil {
		key, name, nodeID := repo.License.Key, repo.License.Name, repo.License.NodeID
		licenseKey, licenseName, licenseNodeID = &key, &name, &nodeID
		licenseSPDX = repo.License.SPDXID
		licenseURL = repo.License.URL
	}

	query, args := upsertSQL("repositories", []column{
		{"id", repo.ID},
		{"node_id", repo.NodeID},
		{"name", repo.Name},
		{"full_name", repo.FullName},
		{"private", repo.Private},
		{"owner_id", ownerID},
		{"owner_login", ownerLogin},
		{"owner_type", ownerType},
		{"html_url", repo.HTMLURL},
		{"description", repo.Description},
		{"fork", repo.Fork},
		{"url", repo.URL},
		{"forks_url", repo.ForksURL},
		{"keys_url", repo.KeysURL},
		{"collaborators_url", repo.CollaboratorsURL},
		{"teams_url", repo.TeamsURL},
		{"hooks_url", repo.HooksURL},
		{"issue_events_url", repo.IssueEventsURL},
		{"events_url", repo.EventsURL},
		{"assignees_url", repo.AssigneesURL},
		{"branches_url", repo.BranchesURL},
		{"tags_url", repo.TagsURL},
		{"blobs_url", repo.BlobsURL},
		{"git_tags_url", repo.GitTagsURL},
		{"git_refs_url", repo.GitRefsURL},
		{"trees_url", repo.TreesURL},
		{"statuses_url", repo.StatusesURL},
		{"languages_url", repo.LanguagesURL},
		{"stargazers_url", repo.StargazersURL},
		{"contributors_url", repo.ContributorsURL},
		{"subscribers_url", repo.SubscribersURL},
		{"subscription_url", repo.SubscriptionURL},
		{"commits_url", repo.CommitsURL},
		{"git_commits_url", repo.GitCommitsURL},
		{"comments_url", repo.CommentsURL},
		{"issue_comment_url", repo.IssueCommentURL},
		{"contents_url", repo.ContentsURL},
		{"compare_url", repo.CompareURL},
		{"merges_url", repo.MergesURL},
		{"archive_url", repo.ArchiveURL},
		{"downloads_url", repo.DownloadsURL},
		{"issues_url", repo.IssuesURL},
		{"pulls_url", repo.PullsURL},
		{"milestones_url", repo.MilestonesURL},
		{"notifications_url", repo.NotificationsURL},
		{"labels_url", repo.LabelsURL},
		{"releases_url", repo.ReleasesURL},
		{"deployments_url", repo.DeploymentsURL},
		{"git_url", repo.GitURL},
		{"ssh_url", repo.SSHURL},
		{"clone_url", repo.CloneURL},
		{"svn_url", repo.SVNURL},
		{"mirror_url", repo.MirrorURL},
		{"homepage", repo.Homepage},
		{"language", repo.Language},
		{"forks_count", repo.ForksCount},
		{"stargazers_count", repo.StargazersCount},
		{"watchers_count", repo.WatchersCount},
		{"size", repo.Size},
		{"default_branch", repo.DefaultBranch},
		{"open_issues_count", repo.OpenIssuesCount},
		{"is_template", repo.IsTemplate},
		{"topics", stringArray(repo.Topics)},
		{"has_issues", repo.HasIssues},
		{"has_projects", repo.HasProjects},
		{"has_downloads", repo.HasDownloads},
		{"has_wiki", repo.HasWiki},
		{"has_pages", repo.HasPages},
		{"has_discussions", repo.HasDiscussions},
		{"archived", repo.Archived},
		{"disabled", repo.Disabled},
		{"visibility", repo.Visibility},
		{"license_key", licenseKey},
		{"license_name", licenseName},
		{"license_spdx_id", licenseSPDX},
		{"license_url", licenseURL},
		{"license_node_id", licenseNodeID},
		{"allow_forking", repo.AllowForking},
		{"web_commit_signoff_required", repo.WebCommitSignoff},
		{"github_pushed_at", repo.PushedAt},
		{"github_created_at", repo.CreatedAt},
		{"github_updated_at", repo.UpdatedAt},
		{"raw", rawJSON(repo.Raw)},
	})

	_, err = repos.db.db.ExecContext(ctx, query, args...)
	return wrapErr(err)
}

const repositoryColumns = `id, full_name, owner_id,
	github_pushed_at, github_created_at, github_updated_at, raw, created_at, updated_at`

func scanRepository(row *sql.Row) (*Repository, error) {
	var repo Repository
	var ownerID sql.NullInt64
	var pushedAt, githubCreatedAt, githubUpdatedAt sql.NullTime
	err := row.Scan(
		&repo.ID, &repo.FullName, &ownerID,
		&pushedAt, &githubCreatedAt, &githubUpdatedAt, &repo.Raw,
		&repo.CreatedAt, &repo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		repo.OwnerID = &ownerID.Int64
	}
	if pushedAt.Valid {
		repo.GithubPushedAt = &pushedAt.Time
	}
	if githubCreatedAt.Valid {
		repo.GithubCreatedAt = &githubCreatedAt.Time
	}
	if githubUpdatedAt.Valid {
		repo.GithubUpdatedAt = &githubUpdatedAt.Time
	}
	return &repo, nil
}

// Get returns a repository by id.
func (repos *repositories) Get(ctx context.Context, id int64) (_ *Repository, err error) {
	defer mon.Task()(&ctx)(&err)

	repo, err := scanRepository(repos.db.db.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("repository %d", id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return repo, nil
}

// GetByFullName returns a repository by its "owner/name" pair.
func (repos *repositories) GetByFullName(ctx context.Context, owner, name string) (_ *Repository, err error) {
	defer mon.Task()(&ctx)(&err)

	fullName := owner + "/" + name
	repo, err := scanRepository(repos.db.db.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE full_name = $1`, fullName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound.New("repository %q", fullName)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return repo, nil
}
