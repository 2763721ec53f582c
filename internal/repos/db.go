package repos

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	applog "qmd/internal/log"
)

// OpenDB opens the sqlite file that backs portal sessions and makes sure the
// schema exists.
func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	applog.Info(nil, "db.ready", map[string]any{"dsn": dsn})
	return db, nil
}

func ensureSchema(db *sqlx.DB) error {
	schema := `
PRAGMA foreign_keys = ON;

-- Browser sessions (id = 'sid' cookie)
CREATE TABLE IF NOT EXISTS sessions(
  id TEXT PRIMARY KEY,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP,
  last_seen  TEXT
);

-- Session values: citizen, active cart, admin token, notification state
CREATE TABLE IF NOT EXISTS session_entries(
  session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  key        TEXT NOT NULL,
  value      TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  updated_at TEXT,
  PRIMARY KEY (session_id, key)
);
CREATE INDEX IF NOT EXISTS idx_session_entries_expires ON session_entries(expires_at);
`
	_, err := db.Exec(schema)
	return err
}
