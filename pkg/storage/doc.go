// Package storage owns the PostgreSQL and Redis connections and the
// schema migrations. Domain packages receive *sql.DB and *redis.Client
// handles from here; none of them open connections themselves.
package storage
