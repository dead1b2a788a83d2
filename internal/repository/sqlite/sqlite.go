// Package sqlite implements the repository interfaces on SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite — no CGo, no C compiler, trivial
// cross-compilation. The driver registers itself with database/sql under the
// name "sqlite" via the blank import below.
//
// The connection is opened in WAL mode so concurrent readers don't block
// behind a writer, and with foreign keys enabled (SQLite ships with them off
// for backwards compatibility) so snippets, comments and likes can't
// reference missing rows.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB owns the sql.DB connection pool and hands out the per-aggregate
// stores. sql.DB is itself a pool and safe for concurrent use, so one DB
// value is shared by every request; the stores are thin views over it.
type DB struct {
	conn     *sql.DB
	users    *UserStore
	snippets *SnippetStore
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" in tests for a throwaway database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces a real connection so a bad path surfaces here, not on
	// the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	db.users = &UserStore{conn: conn}
	db.snippets = &SnippetStore{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Users returns the user store, implementing repository.UserRepository.
func (db *DB) Users() *UserStore {
	return db.users
}

// Snippets returns the snippet store, implementing
// repository.SnippetRepository.
func (db *DB) Snippets() *SnippetStore {
	return db.snippets
}

// Close closes the connection pool. Defer it wherever New is called.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates all tables. Every statement is idempotent (CREATE ... IF
// NOT EXISTS), so migrate is safe to run on every start.
func (db *DB) migrate() error {
	// Users: email is stored lower-cased and is the only uniqueness
	// constraint besides the likes primary key. password_hash is empty for
	// OAuth-only accounts.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT '',
			email         TEXT NOT NULL UNIQUE,
			avatar_url    TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// External identity linkage: one provider account maps to exactly one
	// local user.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			provider         TEXT NOT NULL,
			provider_user_id TEXT NOT NULL,
			user_id          TEXT NOT NULL REFERENCES users(id),
			created_at       DATETIME NOT NULL,
			PRIMARY KEY (provider, provider_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_identities_user_id ON identities(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating identities table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippets (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			code       TEXT NOT NULL,
			language   TEXT NOT NULL,
			author_id  TEXT NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_created_at ON snippets(created_at);
		CREATE INDEX IF NOT EXISTS idx_snippets_author_id ON snippets(author_id);
	`)
	if err != nil {
		return fmt.Errorf("creating snippets table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snippet_tags (
			snippet_id TEXT NOT NULL REFERENCES snippets(id),
			tag        TEXT NOT NULL,
			PRIMARY KEY (snippet_id, tag)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating snippet_tags table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id         TEXT PRIMARY KEY,
			snippet_id TEXT NOT NULL REFERENCES snippets(id),
			author_id  TEXT NOT NULL REFERENCES users(id),
			content    TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comments_snippet_id ON comments(snippet_id);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	// Likes: the composite primary key (user_id, snippet_id) is the only
	// concurrency mechanism the like/unlike operations need — INSERT OR
	// IGNORE makes concurrent likes from the same user converge to one row.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS likes (
			user_id    TEXT NOT NULL REFERENCES users(id),
			snippet_id TEXT NOT NULL REFERENCES snippets(id),
			created_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, snippet_id)
		);
		CREATE INDEX IF NOT EXISTS idx_likes_snippet_id ON likes(snippet_id);
	`)
	if err != nil {
		return fmt.Errorf("creating likes table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite doesn't export a stable error type for this, so we
// match the message SQLite itself produces.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
