// Copyright (C) 2025 Hubtide, Inc.
// See LICENSE for copying information.

package github

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// TypePushEvent is the event type of interest to the harvester.
const TypePushEvent = "PushEvent"

// Event is one element of the public events feed. Raw holds the element
// exactly as it appeared on the wire so handlers can persist it verbatim.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     EventActor      `json:"actor"`
	Repo      EventRepo       `json:"repo"`
	Org       *EventActor     `json:"org"`
	Payload   json.RawMessage `json:"payload"`
	Public    bool            `json:"public"`
	CreatedAt *time.Time      `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// EventActor identifies who triggered an event. The same shape is used
// for the optional org object.
type EventActor struct {
	ID           int64  `json:"id"`
	Login        string `json:"login"`
	DisplayLogin string `json:"display_login"`
	GravatarID   string `json:"gravatar_id"`
	URL          string `json:"url"`
	AvatarURL    string `json:"avatar_url"`
}

// EventRepo identifies the repository an event happened in. Name is the
// "owner/name" pair, not the bare repository name.
type EventRepo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PushPayload is the payload object of a push event.
type PushPayload struct {
	RepositoryID int64  `json:"repository_id"`
	PushID       int64  `json:"push_id"`
	Size         int64  `json:"size"`
	DistinctSize int64  `json:"distinct_size"`
	Ref          string `json:"ref"`
	Head         string `json:"head"`
	Before       string `json:"before"`
}

// PushPayload decodes the event payload as a push. The event type is not
// checked here; callers filter on Type first.
func (event *Event) PushPayload() (PushPayload, error) {
	var payload PushPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return PushPayload{}, Error.Wrap(err)
	}
	return payload, nil
}

// decodeEvents splits the feed body into elements before decoding so every
// event keeps its verbatim wire bytes in Raw.
func decodeEvents(body []byte) ([]Event, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(elements))
	for _, element := range elements {
		var event Event
		if err := json.Unmarshal(element, &event); err != nil {
			return nil, err
		}
		event.Raw = element
		events = append(events, event)
	}
	return events, nil
}

// ActorKind is the classification of an event actor derived from its API URL.
type ActorKind int

const (
	// ActorUnknown means the URL did not match any known shape.
	ActorUnknown ActorKind = iota
	// ActorAbsent means the event carried no actor URL at all.
	ActorAbsent
	// ActorUser is a human account.
	ActorUser
	// ActorBot is an integration account, recognized by the [bot] suffix.
	ActorBot
	// ActorOrganization is an organization account.
	ActorOrganization
)

// String returns a label suitable for logs.
func (kind ActorKind) String() string {
	switch kind {
	case ActorAbsent:
		return "absent"
	case ActorUser:
		return "user"
	case ActorBot:
		return "bot"
	case ActorOrganization:
		return "organization"
	default:
		return "unknown"
	}
}

var (
	userURL = regexp.MustCompile(`^https?://[^/]+/users/([^/]+)$`)
	orgURL  = regexp.MustCompile(`^https?://[^/]+/orgs/([^/]+)$`)
)

// ClassifyActorURL decides what kind of account an actor URL points at and
// returns the account name embedded in it. User URLs whose name carries the
// "[bot]" suffix classify as bots.
func ClassifyActorURL(url string) (kind ActorKind, name string) {
	if url == "" {
		return ActorAbsent, ""
	}
	if match := userURL.FindStringSubmatch(url); match != nil {
		if strings.HasSuffix(match[1], "[bot]") {
			return ActorBot, match[1]
		}
		return ActorUser, match[1]
	}
	if match := orgURL.FindStringSubmatch(url); match != nil {
		return ActorOrganization, match[1]
	}
	return ActorUnknown, ""
}

// SplitRepoName splits an "owner/name" pair from the events feed. It returns
// ok false when the value does not have exactly two non-empty parts.
func SplitRepoName(fullName string) (owner, name string, ok bool) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
