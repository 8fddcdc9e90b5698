// Package session persists the authenticated identity between requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto-platform/internal/auth"
	"crypto-platform/internal/models"
	"crypto-platform/internal/storage"
)

// DefaultTTL is how long a session lives without activity (30 days).
const DefaultTTL = 30 * 24 * time.Hour

// Entry is a loaded session together with its expiry.
type Entry struct {
	Token     string
	Session   *models.Session
	ExpiresAt time.Time
}

// Store keeps one serialized Session per opaque token.
type Store struct {
	db  *storage.DB
	ttl time.Duration
	now func() time.Time
}

// NewStore returns a Store backed by db. A non-positive ttl uses DefaultTTL.
func NewStore(db *storage.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Load returns the session stored under token. Missing, expired and
// malformed entries all report ok == false.
func (s *Store) Load(ctx context.Context, token string) (*models.Session, bool) {
	entry, ok := s.Lookup(ctx, token)
	if !ok {
		return nil, false
	}
	return entry.Session, true
}

// Lookup is Load plus the entry's expiry.
func (s *Store) Lookup(ctx context.Context, token string) (*Entry, bool) {
	if token == "" {
		return nil, false
	}
	rec, err := s.db.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("session lookup failed", "error", err)
		}
		return nil, false
	}
	sess, err := models.ParseSession(rec.Payload)
	if err != nil {
		slog.Debug("discarding malformed session", "user_id", rec.UserID, "error", err)
		return nil, false
	}
	return &Entry{Token: token, Session: sess, ExpiresAt: rec.ExpiresAt}, true
}

// Save persists sess under a fresh token and removes whatever prevToken held.
func (s *Store) Save(ctx context.Context, prevToken string, sess *models.Session) (string, error) {
	if sess == nil {
		return "", errors.New("session: nil session")
	}
	payload, err := sess.Payload()
	if err != nil {
		return "", fmt.Errorf("session: encode: %w", err)
	}
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", fmt.Errorf("session: token: %w", err)
	}
	if prevToken != "" {
		if err := s.db.DeleteSession(ctx, prevToken); err != nil {
			return "", fmt.Errorf("session: replace: %w", err)
		}
	}
	if err := s.db.CreateSession(ctx, token, sess.ID, payload, s.now().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("session: save: %w", err)
	}
	return token, nil
}

// Clear removes the session stored under token.
func (s *Store) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.db.DeleteSession(ctx, token)
}

// Renew extends an entry that is past the halfway point of its lifetime.
// It returns the new expiry and whether a renewal happened.
func (s *Store) Renew(ctx context.Context, entry *Entry) (time.Time, bool, error) {
	now := s.now()
	if entry.ExpiresAt.Sub(now) >= s.ttl/2 {
		return entry.ExpiresAt, false, nil
	}
	expiresAt := now.Add(s.ttl)
	if err := s.db.RenewSession(ctx, entry.Token, expiresAt); err != nil {
		return entry.ExpiresAt, false, err
	}
	entry.ExpiresAt = expiresAt
	return expiresAt, true, nil
}

// Purge deletes expired sessions.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	return s.db.CleanExpiredSessions(ctx)
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Purge(ctx)
			if err != nil {
				slog.Warn("session purge failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("purged expired sessions", "count", removed)
			}
		}
	}
}
