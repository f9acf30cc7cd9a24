package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const catalogSQL = `
CREATE TABLE IF NOT EXISTS collections (
	name            TEXT PRIMARY KEY,
	created_version INTEGER NOT NULL
)`

var collectionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Store provides durable key-value collections.
// Uses SQLite with WAL mode and a single connection.
type Store struct {
	db *sql.DB

	// upgradeMu serializes schema upgrades within this process.
	upgradeMu sync.Mutex
}

// Open creates or opens a SQLite database at the given path and guarantees
// that every required collection exists afterwards.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Missing collections are created in one upgrade. Existing collections are
// left untouched. This function is idempotent - safe to call multiple times.
func Open(path string, required ...string) (*Store, error) {
	for _, name := range required {
		if err := ValidateCollection(name); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("connect: %w", err)}
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	if _, err := db.Exec(catalogSQL); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: fmt.Errorf("create catalog: %w", err)}
	}

	s := &Store{db: db}
	if err := s.ensureCollections(context.Background(), required); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ValidateCollection reports whether name can be used as a collection name.
func ValidateCollection(name string) error {
	if !collectionName.MatchString(name) {
		return fmt.Errorf("%w: collection %q", ErrInvalidName, name)
	}
	return nil
}

// Version returns the current schema version (PRAGMA user_version).
func (s *Store) Version(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, &Error{Op: "version", Err: err}
	}
	return version, nil
}

// Collections returns the names of all collections whose table exists, sorted.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE 'kv\_%' ESCAPE '\'
	`)
	if err != nil {
		return nil, &Error{Op: "collections", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, &Error{Op: "collections", Err: err}
		}
		names = append(names, strings.TrimPrefix(table, "kv_"))
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "collections", Err: err}
	}

	sort.Strings(names)
	return names, nil
}

// EnsureCollection creates the collection if its table is missing, bumping
// the schema version. No-op when the collection already exists.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	if err := ValidateCollection(name); err != nil {
		return err
	}
	return s.ensureCollections(ctx, []string{name})
}

// ensureCollections creates every missing collection in one upgrade.
func (s *Store) ensureCollections(ctx context.Context, names []string) error {
	s.upgradeMu.Lock()
	defer s.upgradeMu.Unlock()

	existing, err := s.Collections(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	var missing []string
	for _, name := range names {
		if !have[name] {
			missing = append(missing, name)
			have[name] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return s.upgrade(ctx, missing)
}

// upgrade adds the given collections and increments user_version, all in one
// transaction. Creation is additive: CREATE TABLE IF NOT EXISTS never touches
// rows of a table that already exists.
func (s *Store) upgrade(ctx context.Context, missing []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "upgrade", Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return &Error{Op: "upgrade", Err: fmt.Errorf("get user_version: %w", err)}
	}
	next := version + 1

	for _, name := range missing {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key        TEXT PRIMARY KEY,
				value      BLOB NOT NULL,
				updated_at INTEGER NOT NULL
			)`, tableName(name))); err != nil {
			return &Error{Op: "upgrade", Collection: name, Err: err}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO collections (name, created_version) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET created_version = excluded.created_version
		`, name, next); err != nil {
			return &Error{Op: "upgrade", Collection: name, Err: err}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", next)); err != nil {
		return &Error{Op: "upgrade", Err: fmt.Errorf("set user_version: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "upgrade", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// tableName quotes the collection table identifier. Names are validated
// against collectionName, so they never contain quotes.
func tableName(collection string) string {
	return `"kv_` + collection + `"`
}
