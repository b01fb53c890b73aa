package models

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are never edited once appended.
type Turn struct {
	ID        string    `db:"id" json:"id"`
	Role      Role      `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Reference is a single retrieved passage backing part of an answer.
type Reference struct {
	Content  string `json:"content"`  // empty when the service returned no text
	Location string `json:"location"` // source location URI, e.g. s3://bucket/key
}

// Citation groups the references the service attached to one span of the answer.
type Citation struct {
	Span       string      `json:"span"`
	References []Reference `json:"references"`
}

// Answer is the full response of one retrieve-and-generate call.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// Exchange is what the most recent query produced, kept for rendering the
// source tabs and the reference panel.
type Exchange struct {
	Query           string      `json:"query"`
	Answer          string      `json:"answer"`
	References      []Reference `json:"references"`       // flattened, in returned order
	SourceLocations []string    `json:"source_locations"` // deduplicated, first-seen order
	CreatedAt       time.Time   `json:"created_at"`
}

// Document is an object listed from the storage bucket.
type Document struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// SignedLink is a presigned download link. Err is set instead of URL when
// signing failed, so a single bad object never hides the rest of the page.
type SignedLink struct {
	Key     string        `json:"key"`
	Name    string        `json:"name"`
	URL     string        `json:"url,omitempty"`
	Expires time.Duration `json:"-"`
	Err     string        `json:"error,omitempty"`
}

// ExpiresIn is the link lifetime in whole seconds.
func (l SignedLink) ExpiresIn() int64 { return int64(l.Expires / time.Second) }

// MarshalJSON adds expires_in for API clients.
func (l SignedLink) MarshalJSON() ([]byte, error) {
	type plain SignedLink
	return json.Marshal(struct {
		plain
		ExpiresIn int64 `json:"expires_in"`
	}{plain(l), l.ExpiresIn()})
}
