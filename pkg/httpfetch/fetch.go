// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

// Package httpfetch downloads files over HTTP with a hard size cap.
package httpfetch

import (
	"context"
	"io"
	"mime"
	"net/http"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the httpfetch package.
	Error = errs.Class("httpfetch")

	// ErrDownload is returned on transport failures, unexpected statuses
	// and too many redirects.
	ErrDownload = errs.Class("download failed")

	// ErrTooLarge is returned when the body exceeds the configured cap,
	// whether announced by Content-Length or discovered while streaming.
	ErrTooLarge = errs.Class("file too large")

	mon = monkit.Package()
)

// maxRedirects bounds how many redirects a single download may follow.
const maxRedirects = 5

// Config is the config struct for the download client.
type Config struct {
	Timeout   time.Duration `help:"timeout for a single download" default:"1m"`
	UserAgent string        `help:"user agent sent on outbound downloads" default:"hubtide"`
}

// Info describes a remote file without downloading it. ContentLength is -1
// when the server did not announce a size.
type Info struct {
	ContentLength int64
	ContentType   string
}

// Result describes a finished download.
type Result struct {
	Bytes       int64
	ContentType string
}

// Client performs capped downloads.
type Client struct {
	config     Config
	httpClient http.Client
}

// NewClient constructs a download client.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: http.Client{
			Timeout: config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrDownload.New("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// SetTransport overrides the underlying round tripper. Tests only.
func (client *Client) SetTransport(transport http.RoundTripper) {
	client.httpClient.Transport = transport
}

// Head asks the server about a file without downloading it.
func (client *Client) Head(ctx context.Context, url string) (_ Info, err error) {
	defer mon.Task()(&ctx)(&err)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Info{}, Error.Wrap(err)
	}
	req.Header.Set("User-Agent", client.config.UserAgent)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return Info{}, ErrDownload.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Info{}, ErrDownload.New("unexpected status %d", resp.StatusCode)
	}

	return Info{
		ContentLength: resp.ContentLength,
		ContentType:   contentTypeOf(resp.Header),
	}, nil
}

// Download streams the file at url into sink, refusing to pass more than
// maxBytes through. A Content-Length above the cap aborts before reading
// the body.
func (client *Client) Download(ctx context.Context, url string, sink io.Writer, maxBytes int64) (_ Result, err error) {
	defer mon.Task()(&ctx)(&err)

	if maxBytes <= 0 {
		return Result{}, Error.New("max bytes must be positive, got %d", maxBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}
	req.Header.Set("User-Agent", client.config.UserAgent)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return Result{}, ErrDownload.Wrap(err)
	}
	defer func() { err = errs.Combine(err, resp.Body.Close()) }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, ErrDownload.New("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return Result{}, ErrTooLarge.New("announced %d bytes exceeds cap %d", resp.ContentLength, maxBytes)
	}

	// read one byte past the cap to tell exactly-at-cap from over-cap
	n, err := io.Copy(sink, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return Result{}, ErrDownload.Wrap(err)
	}
	if n > maxBytes {
		return Result{}, ErrTooLarge.New("body exceeds cap %d", maxBytes)
	}

	return Result{
		Bytes:       n,
		ContentType: contentTypeOf(resp.Header),
	}, nil
}

// contentTypeOf returns the media type of a response with any parameters,
// like charset, stripped. Missing or malformed headers yield "".
func contentTypeOf(header http.Header) string {
	raw := header.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediatype, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return ""
	}
	return mediatype
}
