// Package media stores uploaded assets (images, PDFs, attachments) in
// S3-compatible object storage and tracks them in the media_assets table.
// Assets are immutable: they can be uploaded, listed and deleted, never
// edited in place.
package media
