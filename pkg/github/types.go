// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package github

import (
	"encoding/json"
	"time"
)

// User is a GitHub user profile as returned by GET /users/{login}.
// Nullable upstream fields are pointers so that absent values survive the
// round trip into storage as NULLs.
type User struct {
	Login             string     `json:"login"`
	ID                int64      `json:"id"`
	NodeID            string     `json:"node_id"`
	AvatarURL         string     `json:"avatar_url"`
	GravatarID        string     `json:"gravatar_id"`
	URL               string     `json:"url"`
	HTMLURL           string     `json:"html_url"`
	FollowersURL      string     `json:"followers_url"`
	FollowingURL      string     `json:"following_url"`
	GistsURL          string     `json:"gists_url"`
	StarredURL        string     `json:"starred_url"`
	SubscriptionsURL  string     `json:"subscriptions_url"`
	OrganizationsURL  string     `json:"organizations_url"`
	ReposURL          string     `json:"repos_url"`
	EventsURL         string     `json:"events_url"`
	ReceivedEventsURL string     `json:"received_events_url"`
	Type              string     `json:"type"`
	SiteAdmin         bool       `json:"site_admin"`
	Name              *string    `json:"name"`
	Company           *string    `json:"company"`
	Blog              *string    `json:"blog"`
	Location          *string    `json:"location"`
	Email             *string    `json:"email"`
	Hireable          *bool      `json:"hireable"`
	Bio               *string    `json:"bio"`
	TwitterUsername   *string    `json:"twitter_username"`
	PublicRepos       int64      `json:"public_repos"`
	PublicGists       int64      `json:"public_gists"`
	Followers         int64      `json:"followers"`
	Following         int64      `json:"following"`
	CreatedAt         *time.Time `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`

	// Raw is the response body the profile was decoded from.
	Raw json.RawMessage `json:"-"`
}

// RepoOwner is the owner object nested inside a repository.
type RepoOwner struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	NodeID    string `json:"node_id"`
	AvatarURL string `json:"avatar_url"`
	URL       string `json:"url"`
	HTMLURL   string `json:"html_url"`
	Type      string `json:"type"`
	SiteAdmin bool   `json:"site_admin"`
}

// License is the license object nested inside a repository.
type License struct {
	Key    string  `json:"key"`
	Name   string  `json:"name"`
	SPDXID *string `json:"spdx_id"`
	URL    *string `json:"url"`
	NodeID string  `json:"node_id"`
}

// Repository is a GitHub repository as returned by
// GET /repos/{owner}/{name}.
type Repository struct {
	ID               int64      `json:"id"`
	NodeID           string     `json:"node_id"`
	Name             string     `json:"name"`
	FullName         string     `json:"full_name"`
	Private          bool       `json:"private"`
	Owner            *RepoOwner `json:"owner"`
	HTMLURL          string     `json:"html_url"`
	Description      *string    `json:"description"`
	Fork             bool       `json:"fork"`
	URL              string     `json:"url"`
	ForksURL         string     `json:"forks_url"`
	KeysURL          string     `json:"keys_url"`
	CollaboratorsURL string     `json:"collaborators_url"`
	TeamsURL         string     `json:"teams_url"`
	HooksURL         string     `json:"hooks_url"`
	IssueEventsURL   string     `json:"issue_events_url"`
	EventsURL        string     `json:"events_url"`
	AssigneesURL     string     `json:"assignees_url"`
	BranchesURL      string     `json:"branches_url"`
	TagsURL          string     `json:"tags_url"`
	BlobsURL         string     `json:"blobs_url"`
	GitTagsURL       string     `json:"git_tags_url"`
	GitRefsURL       string     `json:"git_refs_url"`
	TreesURL         string     `json:"trees_url"`
	StatusesURL      string     `json:"statuses_url"`
	LanguagesURL     string     `json:"languages_url"`
	StargazersURL    string     `json:"stargazers_url"`
	ContributorsURL  string     `json:"contributors_url"`
	SubscribersURL   string     `json:"subscribers_url"`
	SubscriptionURL  string     `json:"subscription_url"`
	CommitsURL       string     `json:"commits_url"`
	GitCommitsURL    string     `json:"git_commits_url"`
	CommentsURL      string     `json:"comments_url"`
	IssueCommentURL  string     `json:"issue_comment_url"`
	ContentsURL      string     `json:"contents_url"`
	CompareURL       string     `json:"compare_url"`
	MergesURL        string     `json:"merges_url"`
	ArchiveURL       string     `json:"archive_url"`
	DownloadsURL     string     `json:"downloads_url"`
	IssuesURL        string     `json:"issues_url"`
	PullsURL         string     `json:"pulls_url"`
	MilestonesURL    string     `json:"milestones_url"`
	NotificationsURL string     `json:"notifications_url"`
	LabelsURL        string     `json:"labels_url"`
	ReleasesURL      string     `json:"releases_url"`
	DeploymentsURL   string     `json:"deployments_url"`
	GitURL           string     `json:"git_url"`
	SSHURL           string     `json:"ssh_url"`
	CloneURL         string     `json:"clone_url"`
	SVNURL           string     `json:"svn_url"`
	MirrorURL        *string    `json:"mirror_url"`
	Homepage         *string    `json:"homepage"`
	Language         *string    `json:"language"`
	ForksCount       int64      `json:"forks_count"`
	StargazersCount  int64      `json:"stargazers_count"`
	WatchersCount    int64      `json:"watchers_count"`
	Size             int64      `json:"size"`
	DefaultBranch    string     `json:"default_branch"`
	OpenIssuesCount  int64      `json:"open_issues_count"`
	IsTemplate       bool       `json:"is_template"`
	Topics           []string   `json:"topics"`
	HasIssues        bool       `json:"has_issues"`
	HasProjects      bool       `json:"has_projects"`
	HasDownloads     bool       `json:"has_downloads"`
	HasWiki          bool       `json:"has_wiki"`
	HasPages         bool       `json:"has_pages"`
	HasDiscussions   bool       `json:"has_discussions"`
	Archived         bool       `json:"archived"`
	Disabled         bool       `json:"disabled"`
	Visibility       string     `json:"visibility"`
	License          *License   `json:"license"`
	AllowForking     bool       `json:"allow_forking"`
	WebCommitSignoff bool       `json:"web_commit_signoff_required"`
	Forks            int64      `json:"forks"`
	OpenIssues       int64      `json:"open_issues"`
	Watchers         int64      `json:"watchers"`
	SubscribersCount int64      `json:"subscribers_count"`
	NetworkCount     int64      `json:"network_count"`
	PushedAt         *time.Time `json:"pushed_at"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`

	// Raw is the response body the repository was decoded from.
	Raw json.RawMessage `json:"-"`
}

// Organization is a GitHub organization as returned by
// GET /orgs/{login}.
type Organization struct {
	Login            string     `json:"login"`
	ID               int64      `json:"id"`
	NodeID           string     `json:"node_id"`
	URL              string     `json:"url"`
	ReposURL         string     `json:"repos_url"`
	EventsURL        string     `json:"events_url"`
	HooksURL         string     `json:"hooks_url"`
	IssuesURL        string     `json:"issues_url"`
	MembersURL       string     `json:"members_url"`
	PublicMembersURL string     `json:"public_members_url"`
	AvatarURL        string     `json:"avatar_url"`
	Description      *string    `json:"description"`
	Name             *string    `json:"name"`
	Company          *string    `json:"company"`
	Blog             *string    `json:"blog"`
	Location         *string    `json:"location"`
	Email            *string    `json:"email"`
	TwitterUsername  *string    `json:"twitter_username"`
	IsVerified       bool       `json:"is_verified"`
	HasOrgProjects   bool       `json:"has_organization_projects"`
	HasRepoProjects  bool       `json:"has_repository_projects"`
	PublicRepos      int64      `json:"public_repos"`
	PublicGists      int64      `json:"public_gists"`
	Followers        int64      `json:"followers"`
	Following        int64      `json:"following"`
	HTMLURL          string     `json:"html_url"`
	Type             string     `json:"type"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`

	// Raw is the response body the organization was decoded from.
	Raw json.RawMessage `json:"-"`
}
