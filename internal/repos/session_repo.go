package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// SessionRepo keeps session values in sqlite. Every write pushes the entry's
// expiry to now+TTL.
type SessionRepo struct {
	DB  *sqlx.DB
	TTL time.Duration
	now func() time.Time
}

func NewSessionRepo(db *sqlx.DB, ttl time.Duration) *SessionRepo {
	return &SessionRepo{DB: db, TTL: ttl, now: time.Now}
}

// WithClock is for tests that need to move time forward.
func (r *SessionRepo) WithClock(now func() time.Time) *SessionRepo {
	r.now = now
	return r
}

func (r *SessionRepo) Get(ctx context.Context, sid, key string) (string, error) {
	var v string
	err := r.DB.GetContext(ctx, &v, `
		SELECT value FROM session_entries
		WHERE session_id=? AND key=? AND expires_at > ?`, sid, key, r.now().Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (r *SessionRepo) Set(ctx context.Context, sid, key, value string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := touch(ctx, tx, sid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_entries(session_id,key,value,expires_at,updated_at)
		VALUES(?,?,?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(session_id,key) DO UPDATE SET
		  value=excluded.value, expires_at=excluded.expires_at, updated_at=CURRENT_TIMESTAMP
	`, sid, key, value, r.now().Add(r.TTL).Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SessionRepo) Clear(ctx context.Context, sid, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM session_entries WHERE session_id=? AND key=?`, sid, key)
	return err
}

// Purge deletes expired entries and sessions left without any entry.
func (r *SessionRepo) Purge(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM session_entries WHERE expires_at <= ?`, r.now().Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, err = r.DB.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE NOT EXISTS (SELECT 1 FROM session_entries e WHERE e.session_id = sessions.id)`)
	return n, err
}

func touch(ctx context.Context, tx *sqlx.Tx, sid string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions(id,last_seen) VALUES(?,CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET last_seen=CURRENT_TIMESTAMP`, sid)
	return err
}
