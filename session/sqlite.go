package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	sqliteDirPermissions  = 0750
	sqliteFilePermissions = 0600
	sqliteBusyTimeoutMS   = 5000
	sqlitePingTimeout     = 5 * time.Second
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_entries (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
)`

// SQLitePersistence stores the session pair in a local SQLite file, so a
// session survives process restarts.
type SQLitePersistence struct {
	db        *sql.DB
	namespace string
	owned     bool
}

// OpenSQLite opens (creating if needed) the database file at path and prepares
// the session table.
func OpenSQLite(path, namespace string) (*SQLitePersistence, error) {
	if err := os.MkdirAll(filepath.Dir(path), sqliteDirPermissions); err != nil {
		return nil, fmt.Errorf("creating session database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, sqliteBusyTimeoutMS)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), sqlitePingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, fmt.Errorf("verifying session database: %w", err)
	}

	p, err := NewSQLitePersistence(ctx, db, namespace)
	if err != nil {
		db.Close() //nolint:errcheck // best effort cleanup on error path
		return nil, err
	}
	p.owned = true

	_ = os.Chmod(path, sqliteFilePermissions) //nolint:errcheck // file may not exist until first write

	return p, nil
}

// NewSQLitePersistence wraps an already open database handle and creates the
// session table if it is missing. The caller keeps ownership of db.
func NewSQLitePersistence(ctx context.Context, db *sql.DB, namespace string) (*SQLitePersistence, error) {
	if namespace == "" {
		namespace = "portal"
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("creating session table: %w", err)
	}
	return &SQLitePersistence{db: db, namespace: namespace}, nil
}

// Load reads both entries for the namespace.
func (p *SQLitePersistence) Load(ctx context.Context) (Record, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value FROM session_entries WHERE namespace = ? AND key IN (?, ?)`,
		p.namespace, TokenKey, UserKey,
	)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	defer rows.Close()

	var rec Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
		switch key {
		case TokenKey:
			rec.Token = value
		case UserKey:
			rec.User = value
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return rec, nil
}

// Save upserts both entries in one transaction.
func (p *SQLitePersistence) Save(ctx context.Context, rec Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().Unix()
	for _, entry := range [...]struct{ key, value string }{
		{TokenKey, rec.Token},
		{UserKey, rec.User},
	} {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_entries (namespace, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, p.namespace, entry.key, entry.value, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// Clear deletes both entries for the namespace.
func (p *SQLitePersistence) Clear(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM session_entries WHERE namespace = ? AND key IN (?, ?)`,
		p.namespace, TokenKey, UserKey,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}
	return nil
}

// Close releases the database handle when it was opened by [OpenSQLite].
func (p *SQLitePersistence) Close() error {
	if p == nil || p.db == nil || !p.owned {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing session database: %w", err)
	}
	return nil
}
