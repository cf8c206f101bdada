package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the session token
const SessionCookieName = "campuscms_session"

// DefaultSessionTTL is how long a session stays valid without re-login
const DefaultSessionTTL = 12 * time.Hour

// ErrSessionNotFound indicates a missing, expired or revoked session
var ErrSessionNotFound = errors.New("session not found")

// Session is a server-side login session
type Session struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// SessionStore persists login sessions in PostgreSQL
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSessionStore creates a session store. A non-positive TTL falls back
// to the default.
func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

// Create opens a new session for the user
func (s *SessionStore) Create(ctx context.Context, userID int64, ipAddress, userAgent string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	query := `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW() + $5::interval)
		RETURNING created_at, expires_at`

	interval := fmt.Sprintf("%d seconds", int64(s.ttl.Seconds()))
	err := s.db.QueryRowContext(ctx, query,
		session.ID, session.UserID, session.IPAddress, session.UserAgent, interval,
	).Scan(&session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// Get returns a live session by ID. Expired sessions behave as missing.
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, user_id, ip_address, user_agent, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > NOW()`

	var session Session
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

// Delete ends a session immediately
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser ends all of a user's sessions, e.g. on deactivation
func (s *SessionStore) DeleteForUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes expired rows and reports how many were dropped.
// Run periodically by the maintenance scheduler.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// SetCookie writes the session cookie on the response
func SetCookie(w http.ResponseWriter, session *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

// ClearCookie expires the session cookie on the response
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// TokenFromRequest extracts the session token from the cookie or, for API
// clients, a Bearer authorization header. Returns "" when absent.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
