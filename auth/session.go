package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskforge/taskforge/internal/sqldb"
)

// Profile is the GitHub user attached to a session.
type Profile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Session is a logged-in user.
type Session struct {
	ID        string
	Profile   Profile
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists sessions.
type SessionStore interface {
	// Put inserts or replaces the session with the same ID.
	Put(ctx context.Context, s *Session) error

	// Get returns a live session or ErrUnauthorized.
	Get(ctx context.Context, id string) (*Session, error)

	Delete(ctx context.Context, id string) error
}

// SQLSessionStore keeps sessions in the sessions table. Expired rows are
// never returned and are removed by Sweep. Put and Sweep both trim the
// table to maxSessions, oldest first.
type SQLSessionStore struct {
	db          *sqldb.DB
	maxSessions int
	now         func() time.Time
}

// NewSQLSessionStore returns a session store. maxSessions <= 0 disables the
// size cap.
func NewSQLSessionStore(db *sqldb.DB, maxSessions int) *SQLSessionStore {
	return &SQLSessionStore{db: db, maxSessions: maxSessions, now: time.Now}
}

func (s *SQLSessionStore) Put(ctx context.Context, sess *Session) error {
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (id, profile, created_at, expires_at) VALUES (?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			profile=excluded.profile, created_at=excluded.created_at, expires_at=excluded.expires_at`),
		sess.ID, string(profile), sess.CreatedAt.Unix(), sess.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	if _, err := s.trim(ctx); err != nil {
		return err
	}
	return nil
}

func (s *SQLSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var profile string
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT profile, created_at, expires_at FROM sessions WHERE id = ? AND expires_at > ?`),
		id, s.now().Unix(),
	).Scan(&profile, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess := &Session{
		ID:        id,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(profile), &sess.Profile); err != nil {
		return nil, fmt.Errorf("decode session profile: %w", err)
	}
	return sess, nil
}

func (s *SQLSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Sweep deletes expired sessions and, when over the cap, the oldest ones.
// It returns the number of rows removed.
func (s *SQLSessionStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	removed, _ := res.RowsAffected()

	n, err := s.trim(ctx)
	if err != nil {
		return removed, err
	}
	return removed + n, nil
}

// trim deletes the oldest sessions beyond maxSessions.
func (s *SQLSessionStore) trim(ctx context.Context) (int64, error) {
	if s.maxSessions <= 0 {
		return 0, nil
	}
	// SQLite needs a LIMIT before OFFSET; -1 means unbounded.
	limit := "LIMIT -1 "
	if s.db.Driver() == sqldb.DriverPostgres {
		limit = ""
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions ORDER BY created_at DESC, id DESC `+limit+`OFFSET ?
		)`), s.maxSessions)
	if err != nil {
		return 0, fmt.Errorf("trim sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *SQLSessionStore) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept sessions", "removed", n)
			}
		}
	}
}
