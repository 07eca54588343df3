// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package harvesterdb

import (
	"github.com/hubtide/hubtide/private/migrate"
)

// Migration returns the schema migration steps. The raw columns use the
// json type rather than jsonb so the stored payload stays byte-identical
// to what arrived on the wire.
func (db *database) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{
				DB:          db.db,
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE push_events (
						id text NOT NULL,
						actor_id bigint NOT NULL,
						repo_id bigint NOT NULL,
						org_id bigint,
						push_id bigint NOT NULL,
						ref text NOT NULL,
						head text NOT NULL,
						"before" text NOT NULL,
						raw json NOT NULL,
						github_created_at timestamp with time zone,
						created_at timestamp with time zone NOT NULL DEFAULT now(),
						PRIMARY KEY ( id )
					)`,
					`CREATE TABLE users (
						id bigint NOT NULL,
						login text NOT NULL,
						node_id text,
						avatar_url text,
						avatar_key text,
						gravatar_id text,
						url text,
						html_url text,
						followers_url text,
						following_url text,
						gists_url text,
						starred_url text,
						subscriptions_url text,
						organizations_url text,
						repos_url text,
						events_url text,
						received_events_url text,
						type text,
						site_admin boolean NOT NULL DEFAULT false,
						name text,
						company text,
						blog text,
						location text,
						email text,
						hireable boolean,
						bio text,
						twitter_username text,
						public_repos bigint NOT NULL DEFAULT 0,
						public_gists bigint NOT NULL DEFAULT 0,
						followers bigint NOT NULL DEFAULT 0,
						following bigint NOT NULL DEFAULT 0,
						github_created_at timestamp with time zone,
						github_updated_at timestamp with time zone,
						raw json NOT NULL,
						created_at timestamp with time zone NOT NULL DEFAULT now(),
						updated_at timestamp with time zone NOT NULL DEFAULT now(),
						PRIMARY KEY ( id )
					)`,
					`CREATE TABLE repositories (
						id bigint NOT NULL,
						node_id text,
						name text NOT NULL,
						full_name text NOT NULL,
						private boolean NOT NULL DEFAULT false,
						owner_id bigint,
						owner_login text,
						owner_type text,
						html_url text,
						description text,
						fork boolean NOT NULL DEFAULT false,
						url text,
						forks_url text,
						keys_url text,
						collaborators_url text,
						teams_url text,
						hooks_url text,
						issue_events_url text,
						events_url text,
						assignees_url text,
						branches_url text,
						tags_url text,
						blobs_url text,
						git_tags_url text,
						git_refs_url text,
						trees_url text,
						statuses_url text,
						languages_url text,
						stargazers_url text,
						contributors_url text,
						subscribers_url text,
						subscription_url text,
						commits_url text,
						git_commits_url text,
						comments_url text,
						issue_comment_url text,
						contents_url text,
						compare_url text,
						merges_url text,
						archive_url text,
						downloads_url text,
						issues_url text,
						pulls_url text,
						milestones_url text,
						notifications_url text,
						labels_url text,
						releases_url text,
						deployments_url text,
						git_url text,
						ssh_url text,
						clone_url text,
						svn_url text,
						mirror_url text,
						homepage text,
						language text,
						forks_count bigint NOT NULL DEFAULT 0,
						stargazers_count bigint NOT NULL DEFAULT 0,
						watchers_count bigint NOT NULL DEFAULT 0,
						size bigint NOT NULL DEFAULT 0,
						default_branch text,
						open_issues_count bigint NOT NULL DEFAULT 0,
						is_template boolean NOT NULL DEFAULT false,
						topics text[],
						has_issues boolean NOT NULL DEFAULT false,
						has_projects boolean NOT NULL DEFAULT false,
						has_downloads boolean NOT NULL DEFAULT false,
						has_wiki boolean NOT NULL DEFAULT false,
						has_pages boolean NOT NULL DEFAULT false,
						has_discussions boolean NOT NULL DEFAULT false,
						archived boolean NOT NULL DEFAULT false,
						disabled boolean NOT NULL DEFAULT false,
						visibility text,
						license_key text,
						license_name text,
						license_spdx_id text,
						license_url text,
						license_node_id text,
						allow_forking boolean NOT NULL DEFAULT false,
						web_commit_signoff_required boolean NOT NULL DEFAULT false,
						github_pushed_at timestamp with time zone,
						github_created_at timestamp with time zone,
						github_updated_at timestamp with time zone,
						raw json NOT NULL,
						created_at timestamp with time zone NOT NULL DEFAULT now(),
						updated_at timestamp with time zone NOT NULL DEFAULT now(),
						PRIMARY KEY ( id )
					)`,
					`CREATE TABLE organizations (
						id bigint NOT NULL,
						login text NOT NULL,
						node_id text,
						url text,
						repos_url text,
						events_url text,
						hooks_url text,
						issues_url text,
						members_url text,
						public_members_url text,
						avatar_url text,
						description text,
						name text,
						company text,
						blog text,
						location text,
						email text,
						twitter_username text,
						is_verified boolean NOT NULL DEFAULT false,
						has_organization_projects boolean NOT NULL DEFAULT false,
						has_repository_projects boolean NOT NULL DEFAULT false,
						public_repos bigint NOT NULL DEFAULT 0,
						public_gists bigint NOT NULL DEFAULT 0,
						followers bigint NOT NULL DEFAULT 0,
						following bigint NOT NULL DEFAULT 0,
						html_url text,
						type text,
						github_created_at timestamp with time zone,
						github_updated_at timestamp with time zone,
						raw json NOT NULL,
						created_at timestamp with time zone NOT NULL DEFAULT now(),
						updated_at timestamp with time zone NOT NULL DEFAULT now(),
						PRIMARY KEY ( id )
					)`,
				},
			},
			{
				DB:          db.db,
				Description: "Add lookup indexes for handles",
				Version:     1,
				Action: migrate.SQL{
					`CREATE INDEX users_login_index ON users ( login )`,
					`CREATE INDEX repositories_full_name_index ON repositories ( full_name )`,
					`CREATE INDEX organizations_login_index ON organizations ( login )`,
				},
			},
			{
				DB:          db.db,
				Description: "Track avatar keys for organizations",
				Version:     2,
				Action: migrate.SQL{
					`ALTER TABLE organizations ADD COLUMN avatar_key text`,
				},
			},
		},
	}
}
