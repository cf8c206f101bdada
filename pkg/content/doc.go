// Package content manages the site's editorial content: blog posts plus
// the document-style items (publications, reports, research activities,
// success stories).
//
// Two rules run through every mutation. First, publication state:
// published_at is non-null exactly when status is published; it is set on
// entering the published state (unless the caller supplies a timestamp)
// and cleared on leaving it. Second, version history: an update that
// changes an item's body snapshots the prior title and body into
// content_versions inside the same transaction, with a version number
// that increases strictly per item. Title-only and metadata edits do
// not version.
package content
