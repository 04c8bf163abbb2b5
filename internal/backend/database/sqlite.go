package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	_ "modernc.org/sqlite"
)

// schemaVersion is tracked via PRAGMA user_version. Migrations are additive:
// a version bump may create missing partitions but never drops existing data.
//
// v1: images partition
// v2: state key-value table
const schemaVersion = 2

var partitionNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type SQLiteStore struct {
	connectionString string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(connectionString string) *SQLiteStore {
	return &SQLiteStore{connectionString: connectionString}
}

// Open opens the database and applies pending migrations. The open is
// memoized: once it succeeded, further calls return immediately, and callers
// arriving while an open is in flight wait for that single attempt. A failed
// attempt is discarded so the next call starts over.
func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	s.db = db
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	if version < 1 {
		_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			payload BLOB,
			category_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			is_favorite INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`, PartitionImages))
		if err != nil {
			return fmt.Errorf("failed to create partition %s: %w", PartitionImages, err)
		}
	}
	if version < 2 {
		_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
		if err != nil {
			return fmt.Errorf("failed to create state table: %w", err)
		}
	}

	// PRAGMA does not support parameter binding
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	slog.Info("database schema migrated", "from_version", version, "to_version", schemaVersion)
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the open connection or ErrNotInitialized.
func (s *SQLiteStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func validatePartition(partition string) error {
	if !partitionNamePattern.MatchString(partition) {
		return fmt.Errorf("invalid partition name: %q", partition)
	}
	return nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, partition string) ([]*Record, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if err := validatePartition(partition); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, file_name, mime_type, payload, category_id, workspace_id, is_favorite, created_at FROM %s", partition))
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*Record
	for rows.Next() {
		var rec Record
		var favorite int
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.MimeType, &rec.Payload,
			&rec.CategoryID, &rec.WorkspaceID, &favorite, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.IsFavorite = favorite != 0
		records = append(records, &rec)
	}
	return records, rows.Err()
}

const upsertStatement = `INSERT INTO %s
	(id, file_name, mime_type, payload, category_id, workspace_id, is_favorite, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		file_name = excluded.file_name,
		mime_type = excluded.mime_type,
		payload = excluded.payload,
		category_id = excluded.category_id,
		workspace_id = excluded.workspace_id,
		is_favorite = excluded.is_favorite,
		created_at = excluded.created_at`

func upsertArgs(rec *Record) []any {
	favorite := 0
	if rec.IsFavorite {
		favorite = 1
	}
	return []any{rec.ID, rec.FileName, rec.MimeType, rec.Payload,
		rec.CategoryID, rec.WorkspaceID, favorite, rec.CreatedAt}
}

func (s *SQLiteStore) Put(ctx context.Context, partition string, record *Record) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := validatePartition(partition); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(upsertStatement, partition), upsertArgs(record)...)
	if err != nil {
		return fmt.Errorf("failed to put record %s: %w", record.ID, err)
	}
	return nil
}

func (s *SQLiteStore) PutAll(ctx context.Context, partition string, records []*Record) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := validatePartition(partition); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(upsertStatement, partition))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to put record %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, partition string, id string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := validatePartition(partition); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", partition), id)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, partition string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := validatePartition(partition); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", partition))
	if err != nil {
		return fmt.Errorf("failed to clear partition %s: %w", partition, err)
	}
	return nil
}

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}

	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key string, value string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, "DELETE FROM state WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}
