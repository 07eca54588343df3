// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package github talks to the GitHub REST API on behalf of the harvester.
//
// Every request is coordinated with the shared rate limit state before it
// is sent and reports the response headers back afterwards, so that all
// processes polling the same API token stay inside the budget together.
package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var mon = monkit.Package()

const apiVersion = "2022-11-28"

// ResourceCore is the rate limit resource class that the REST endpoints
// used by the harvester are billed against.
const ResourceCore = "core"

// Limiter coordinates the shared rate limit budget around API calls.
type Limiter interface {
	// CheckLimit blocks until the resource has budget again. It returns
	// an error only when the wait is interrupted.
	CheckLimit(ctx context.Context, resource string) error
	// ConsumeLocal accounts one request against the locally tracked
	// budget and returns the credit left.
	ConsumeLocal(ctx context.Context, resource string) (remaining int64, err error)
	// RecordLimit publishes the rate limit headers of a response.
	RecordLimit(ctx context.Context, resource string, header http.Header) error
}

// ClientConfig is the config struct for the API client.
type ClientConfig struct {
	ServerAddress  string        `help:"base address of the GitHub API" default:"https://api.github.com"`
	Token          string        `help:"token for authenticated requests, anonymous when empty" default:"" env:"GITHUB_API_TOKEN"`
	RequestTimeout time.Duration `help:"timeout for a single API request" default:"30s"`
	UserAgent      string        `help:"user agent reported to the API" default:"hubtide"`
}

// Client fetches events, users, repositories and organizations from the
// GitHub REST API. It remembers ETags per endpoint and sends conditional
// requests where the API supports them.
type Client struct {
	log    *zap.Logger
	config ClientConfig
	limits Limiter

	httpClient http.Client

	mu    sync.Mutex
	etags map[string]string
}

// NewClient constructs an API client. limits may be nil, in which case the
// client performs no rate limit coordination.
func NewClient(log *zap.Logger, config ClientConfig, limits Limiter) *Client {
	return &Client{
		log:    log,
		config: config,
		limits: limits,
		httpClient: http.Client{
			Timeout: config.RequestTimeout,
		},
		etags: map[string]string{},
	}
}

// ListPublicEvents returns the current page of the public events feed. When
// the feed has not changed since the previous call it returns ErrNotModified.
func (client *Client) ListPublicEvents(ctx context.Context) (_ []Event, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := client.do(ctx, "/events", true)
	if err != nil {
		return nil, err
	}

	events, err := decodeEvents(body)
	if err != nil {
		return nil, ErrServer.Wrap(err)
	}
	return events, nil
}

// FetchUser returns the profile of a user.
func (client *Client) FetchUser(ctx context.Context, login string) (_ *User, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := client.do(ctx, "/users/"+url.PathEscape(login), false)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, ErrServer.Wrap(err)
	}
	user.Raw = body
	return &user, nil
}

// FetchRepository returns a repository by owner and name.
func (client *Client) FetchRepository(ctx context.Context, owner, name string) (_ *Repository, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := client.do(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), false)
	if err != nil {
		return nil, err
	}

	var repo Repository
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, ErrServer.Wrap(err)
	}
	repo.Raw = body
	return &repo, nil
}

// FetchOrganization returns an organization by login.
func (client *Client) FetchOrganization(ctx context.Context, login string) (_ *Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	body, err := client.do(ctx, "/orgs/"+url.PathEscape(login), false)
	if err != nil {
		return nil, err
	}

	var org Organization
	if err := json.Unmarshal(body, &org); err != nil {
		return nil, ErrServer.Wrap(err)
	}
	org.Raw = body
	return &org, nil
}

// do issues a GET against the API and returns the body on success. The
// shared rate limit is checked before the request goes out and the response
// headers are recorded no matter what status came back. When conditional is
// set the request carries the remembered ETag for the path.
func (client *Client) do(ctx context.Context, path string, conditional bool) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	if client.limits != nil {
		if err := client.limits.CheckLimit(ctx, ResourceCore); err != nil {
			return nil, Error.Wrap(err)
		}
		remaining, err := client.limits.ConsumeLocal(ctx, ResourceCore)
		if err != nil {
			client.log.Warn("failed to account local rate limit spend", zap.Error(err))
		} else {
			client.log.Debug("local rate limit spend",
				zap.String("resource", ResourceCore),
				zap.Int64("remaining", remaining))
		}
	}

	endpoint := strings.TrimSuffix(client.config.ServerAddress, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", client.config.UserAgent)
	if client.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+client.config.Token)
	}
	if conditional {
		if etag := client.etag(path); etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, ErrServer.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrServer.Wrap(err)
	}

	if client.limits != nil {
		if err := client.limits.RecordLimit(ctx, resourceOf(resp.Header), resp.Header); err != nil {
			client.log.Warn("failed to record rate limit state", zap.Error(err))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, resp.Header, body)
	}

	if conditional {
		if etag := resp.Header.Get("ETag"); etag != "" {
			client.setETag(path, etag)
		}
	}
	return body, nil
}

func (client *Client) etag(path string) string {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.etags[path]
}

func (client *Client) setETag(path, etag string) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.etags[path] = etag
}

// resourceOf returns the rate limit resource class a response was billed
// against, defaulting to core when the API did not say.
func resourceOf(header http.Header) string {
	if resource := header.Get("X-RateLimit-Resource"); resource != "" {
		return resource
	}
	return ResourceCore
}
