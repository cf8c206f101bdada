package webhooks

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a subscription does not exist
var ErrNotFound = errors.New("webhook subscription not found")

// EventAll subscribes to every content event
const EventAll = "*"

// Subscription is a registered webhook endpoint. Events holds names of
// the form "<content type>.<operation>" (for example "blog.update"), or
// the wildcard "*".
type Subscription struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Events    []string  `json:"events"`
	IsActive  bool      `json:"is_active"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one content change as delivered to subscribers
type Event struct {
	Name        string    `json:"event"`
	ContentType string    `json:"content_type"`
	Operation   string    `json:"operation"`
	ContentID   int64     `json:"content_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}
