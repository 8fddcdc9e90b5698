package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no live session matches a token.
var ErrNotFound = errors.New("storage: session not found")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases shared across calls.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			payload TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SessionRecord is a persisted session row.
type SessionRecord struct {
	Token        string
	UserID       int64
	Payload      []byte
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateSession stores a serialized session under token.
func (db *DB) CreateSession(ctx context.Context, token string, userID int64, payload []byte, expiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, payload, expires_at, last_activity) VALUES (?, ?, ?, ?, ?)",
		token, userID, string(payload), expiresAt.UTC(), now,
	)
	return err
}

// GetSession returns the live session stored under token.
func (db *DB) GetSession(ctx context.Context, token string) (*SessionRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT token, user_id, payload, last_activity, expires_at
		FROM sessions
		WHERE token = ? AND expires_at > ?
	`, token, time.Now().UTC())

	var rec SessionRecord
	var payload string
	if err := row.Scan(&rec.Token, &rec.UserID, &payload, &rec.LastActivity, &rec.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		now, newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions and reports how many went.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SessionCount returns the number of stored sessions, expired or not.
func (db *DB) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}
