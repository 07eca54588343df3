// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package github

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"

	"github.com/zeebo/errs"
)

var (
	// Error is the default error class for the github package.
	Error = errs.Class("github")

	// ErrNotModified is returned when a conditional request matched the
	// current representation (status 304).
	ErrNotModified = errs.Class("not modified")

	// ErrRateLimited is returned when the API refused the request because
	// the rate budget is exhausted.
	ErrRateLimited = errs.Class("rate limited")

	// ErrClient is returned on 4xx responses that are not rate limits.
	// Retrying these without changing the request is pointless.
	ErrClient = errs.Class("client error")

	// ErrServer is returned on 5xx responses, transport failures, and
	// bodies that failed to decode on otherwise successful statuses.
	ErrServer = errs.Class("server error")
)

// rateLimitMessage matches the message field GitHub uses on secondary and
// primary rate limit rejections.
var rateLimitMessage = regexp.MustCompile(`(?i)rate limit`)

// maxErrorBody bounds how much of a response body an error carries around.
const maxErrorBody = 1024

// apiError carries the status code and a truncated response body through
// the error chain. Status is zero when the request never got a response.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	if e.status == 0 {
		return "no response: " + e.body
	}
	if e.body == "" {
		return "unexpected status " + strconv.Itoa(e.status)
	}
	return "unexpected status " + strconv.Itoa(e.status) + ": " + e.body
}

// StatusOf returns the HTTP status carried by err. The second return is
// false when the error does not originate from an HTTP response, such as
// a transport failure.
func StatusOf(err error) (status int, ok bool) {
	errs.IsFunc(err, func(err error) bool {
		if apierr, ok2 := err.(*apiError); ok2 { //nolint: errorlint // IsFunc unwraps the chain already
			status, ok = apierr.status, apierr.status != 0
			return true
		}
		return false
	})
	return status, ok
}

// BodyOf returns the truncated response body carried by err, if any.
func BodyOf(err error) (body string) {
	errs.IsFunc(err, func(err error) bool {
		if apierr, ok := err.(*apiError); ok { //nolint: errorlint // IsFunc unwraps the chain already
			body = apierr.body
			return true
		}
		return false
	})
	return body
}

// newAPIError builds an apiError with the body clipped to maxErrorBody.
func newAPIError(status int, body []byte) *apiError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &apiError{status: status, body: string(body)}
}

// classifyStatus maps a non-success response onto the error taxonomy.
// It assumes status is not a 2xx.
func classifyStatus(status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusNotModified:
		return ErrNotModified.Wrap(newAPIError(status, nil))

	case status == http.StatusTooManyRequests:
		return ErrRateLimited.Wrap(newAPIError(status, body))

	case status == http.StatusForbidden && forbiddenIsRateLimit(header, body):
		return ErrRateLimited.Wrap(newAPIError(status, body))

	case status >= 400 && status < 500:
		return ErrClient.Wrap(newAPIError(status, body))

	default:
		return ErrServer.Wrap(newAPIError(status, body))
	}
}

// forbiddenIsRateLimit reports whether a 403 is really a rate limit
// rejection: the remaining budget header reads zero, a Retry-After header
// is present, or the body's message mentions a rate limit.
func forbiddenIsRateLimit(header http.Header, body []byte) bool {
	if header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	if header.Get("Retry-After") != "" {
		return true
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return rateLimitMessage.MatchString(payload.Message)
	}
	return false
}
