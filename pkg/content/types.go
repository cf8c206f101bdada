package content

import (
	"fmt"
	"time"
)

// Kind discriminates the content types sharing the versioning machinery
type Kind string

const (
	KindBlog         Kind = "blog_post"
	KindPublication  Kind = "publication"
	KindReport       Kind = "report"
	KindResearch     Kind = "research_activity"
	KindSuccessStory Kind = "success_story"
)

// ItemKinds are the document-style kinds handled by the generic item
// store; blog posts have their own table and handlers.
var ItemKinds = []Kind{KindPublication, KindReport, KindResearch, KindSuccessStory}

// itemTables maps document kinds to their tables. Closed set; unknown
// kinds never reach SQL.
var itemTables = map[Kind]string{
	KindPublication:  "publications",
	KindReport:       "reports",
	KindResearch:     "research_activities",
	KindSuccessStory: "success_stories",
}

// TableForKind returns the backing table for a document kind
func TableForKind(kind Kind) (string, error) {
	table, ok := itemTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown content kind %q", kind)
	}
	return table, nil
}

// Status is the editorial lifecycle state
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusPublished     Status = "published"
	StatusArchived      Status = "archived"
)

// ValidStatus reports whether the status is known for the given kind.
// pending_review exists only for blog posts.
func ValidStatus(kind Kind, status Status) bool {
	switch status {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	case StatusPendingReview:
		return kind == KindBlog
	}
	return false
}

// BlogPost is an article with a unique URL slug
type BlogPost struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Content       string     `json:"content"`
	Excerpt       string     `json:"excerpt,omitempty"`
	CoverImageURL string     `json:"cover_image_url,omitempty"`
	AuthorID      *int64     `json:"author_id,omitempty"`
	DepartmentID  *int64     `json:"department_id,omitempty"`
	Status        Status     `json:"status"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Item is a document-style content record: publications, reports,
// research activities and success stories share this shape.
type Item struct {
	ID           int64      `json:"id"`
	Kind         Kind       `json:"kind"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	FileURL      string     `json:"file_url,omitempty"`
	DepartmentID *int64     `json:"department_id,omitempty"`
	Status       Status     `json:"status"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedBy    *int64     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Version is an immutable snapshot of an item's prior title and body
type Version struct {
	ID            int64     `json:"id"`
	ContentType   Kind      `json:"content_type"`
	ContentID     int64     `json:"content_id"`
	VersionNumber int64     `json:"version_number"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	EditedBy      *int64    `json:"edited_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// resolvePublishedAt applies the publication timestamp rule on a status
// change. requested is a caller-supplied timestamp, nil when absent.
func resolvePublishedAt(newStatus Status, current *time.Time, requested *time.Time, now time.Time) *time.Time {
	if newStatus != StatusPublished {
		return nil
	}
	if requested != nil {
		return requested
	}
	if current != nil {
		// Already published; keep the original timestamp.
		return current
	}
	t := now
	return &t
}
