package persist

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (revisions table)
// 1 - Added index on revisions.written_at
// 2 - Added preserved table for revisions kept out of pruning
const currentSchemaVersion = 2

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	// HistoryLimit caps the revisions kept. Zero keeps every revision.
	HistoryLimit int
	Now          func() time.Time
}

// SQLiteBackend keeps an append-only revision log of the document in SQLite.
// It suits shared deployments where several processes write one store.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	opts SQLiteOptions
	lock *FileLock
	sem  semaphore
}

// Revision describes one saved version of the document.
type Revision struct {
	Seq           int64  `json:"seq"`
	SchemaVersion int    `json:"schema_version"`
	Checksum      string `json:"checksum"`
	Size          int    `json:"size"`
	WrittenAt     string `json:"written_at"`
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("open sqlite backend: empty path")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{
		db:   db,
		path: path,
		opts: opts,
		lock: NewFileLock(path + ".lock"),
		sem:  newSemaphore(),
	}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes revisions by write time for history listings.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_revisions_written_at
		ON revisions(written_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds the table that keeps preserved revisions out of pruning.
func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preserved (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			revision_seq INTEGER NOT NULL,
			body         BLOB    NOT NULL,
			preserved_at TEXT    NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v2: %w", err)
	}
	return nil
}

// Load returns the body of the newest revision.
func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var body []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM revisions ORDER BY seq DESC LIMIT 1`,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest revision: %w", err)
	}
	return body, nil
}

// Save appends a revision and prunes history beyond the configured limit.
func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	sum := sha256.Sum256(data)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (schema_version, checksum, body, written_at)
		VALUES (?, ?, ?, ?)
	`, schemaVersionOf(data), hex.EncodeToString(sum[:]), data, b.stamp())
	if err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	if b.opts.HistoryLimit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM revisions
			WHERE seq <= (SELECT MAX(seq) FROM revisions) - ?
		`, b.opts.HistoryLimit)
		if err != nil {
			return fmt.Errorf("prune revisions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Preserve copies the newest revision into the preserved table.
func (b *SQLiteBackend) Preserve(ctx context.Context) (string, error) {
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO preserved (revision_seq, body, preserved_at)
		SELECT seq, body, ? FROM revisions ORDER BY seq DESC LIMIT 1
	`, b.stamp())
	if err != nil {
		return "", fmt.Errorf("preserve revision: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("preserve revision: %w", err)
	}
	return fmt.Sprintf("%s#preserved/%d", b.path, id), nil
}

// History lists up to limit revisions, newest first. A non-positive limit
// lists everything.
func (b *SQLiteBackend) History(ctx context.Context, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT seq, schema_version, checksum, length(body), written_at
		FROM revisions
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.Seq, &r.SchemaVersion, &r.Checksum, &r.Size, &r.WrittenAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Lock serializes writers in this process and across processes.
func (b *SQLiteBackend) Lock(ctx context.Context) (func(), error) {
	return lockBoth(ctx, b.sem, b.lock)
}

// Location returns the database path.
func (b *SQLiteBackend) Location() string {
	return b.path
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) stamp() string {
	return b.opts.Now().UTC().Format(time.RFC3339)
}

// schemaVersionOf reads _schema_version from a document, or 0.
func schemaVersionOf(data []byte) int {
	var head struct {
		Version int `json:"_schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0
	}
	return head.Version
}

// HistoryLister is implemented by backends that keep revisions.
type HistoryLister interface {
	History(ctx context.Context, limit int) ([]Revision, error)
}
