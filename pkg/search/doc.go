// Package search provides full-text search over published content for
// the public site, backed by PostgreSQL tsvector matching across the
// blog and the document collections.
package search
