package media

import "time"

// Asset is one uploaded file tracked in object storage
type Asset struct {
	ID          int64     `json:"id"`
	FileName    string    `json:"file_name"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url"`
	UploadedBy  *int64    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
