package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Store persists webhook subscriptions in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a subscription store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a subscription
func (s *Store) Create(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO webhook_subscriptions (name, url, secret, events, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		sub.Name, sub.URL, sub.Secret, pq.Array(sub.Events), sub.IsActive, sub.CreatedBy,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert webhook subscription: %w", err)
	}
	return nil
}

// Get returns one subscription
func (s *Store) Get(ctx context.Context, id int64) (*Subscription, error) {
	query := `
		SELECT id, name, url, secret, events, is_active, created_by, created_at, updated_at
		FROM webhook_subscriptions WHERE id = $1`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return sub, nil
}

// List returns all subscriptions, newest first
func (s *Store) List(ctx context.Context) ([]Subscription, error) {
	query := `
		SELECT id, name, url, secret, events, is_active, created_by, created_at, updated_at
		FROM webhook_subscriptions ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListActiveForEvent returns active subscriptions whose filter matches
// the named event, either exactly or via the wildcard
func (s *Store) ListActiveForEvent(ctx context.Context, event string) ([]Subscription, error) {
	query := `
		SELECT id, name, url, secret, events, is_active, created_by, created_at, updated_at
		FROM webhook_subscriptions
		WHERE is_active AND (events @> ARRAY[$1]::text[] OR events @> ARRAY[$2]::text[])
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, event, EventAll)
	if err != nil {
		return nil, fmt.Errorf("failed to match webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// SetActive toggles a subscription without touching its filter
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE webhook_subscriptions SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	return requireRow(result)
}

// Delete removes a subscription
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.Name, &sub.URL, &sub.Secret, pq.Array(&sub.Events),
		&sub.IsActive, &sub.CreatedBy, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
