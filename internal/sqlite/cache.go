package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rpggio/biodata/internal/offline"
	"github.com/rpggio/biodata/internal/repository"
)

// CacheStorage implements offline.CacheStorage for SQLite
type CacheStorage struct {
	db *DB
}

var _ offline.CacheStorage = (*CacheStorage)(nil)

// NewCacheStorage creates a new CacheStorage
func NewCacheStorage(db *DB) *CacheStorage {
	return &CacheStorage{db: db}
}

// Keys lists bucket names in creation order
func (s *CacheStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM cache_buckets ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cache bucket: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache buckets: %w", err)
	}
	return names, nil
}

// Has reports whether a bucket exists
func (s *CacheStorage) Has(ctx context.Context, bucket string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_buckets WHERE name = ?`, bucket).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cache bucket: %w", err)
	}
	return count > 0, nil
}

// Delete removes a bucket; entries go with it via ON DELETE CASCADE
func (s *CacheStorage) Delete(ctx context.Context, bucket string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cache_buckets WHERE name = ?`, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache bucket: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Match returns the entry stored under key
func (s *CacheStorage) Match(ctx context.Context, bucket, key string) (*offline.StoredResponse, error) {
	query := `
		SELECT url, status, header, body, stored_at
		FROM cache_entries
		WHERE bucket = ? AND url = ?
	`

	var (
		entry  offline.StoredResponse
		header string
	)
	err := s.db.QueryRowContext(ctx, query, bucket, key).Scan(
		&entry.URL,
		&entry.Status,
		&header,
		&entry.Body,
		&entry.StoredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return nil, fmt.Errorf("failed to decode cached header: %w", err)
	}
	return &entry, nil
}

// Put stores one entry, creating the bucket if needed
func (s *CacheStorage) Put(ctx context.Context, bucket, key string, entry *offline.StoredResponse) error {
	return s.PutAll(ctx, bucket, map[string]*offline.StoredResponse{key: entry})
}

// PutAll creates the bucket and stores all entries in one transaction
func (s *CacheStorage) PutAll(ctx context.Context, bucket string, entries map[string]*offline.StoredResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cache_buckets (name, created_at) VALUES (?, ?)`, bucket, time.Now()); err != nil {
		return fmt.Errorf("failed to create cache bucket: %w", err)
	}

	query := `
		INSERT INTO cache_entries (bucket, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, url) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at
	`
	for key, entry := range entries {
		header := entry.Header
		if header == nil {
			header = http.Header{}
		}
		encoded, err := json.Marshal(header)
		if err != nil {
			return fmt.Errorf("failed to encode header: %w", err)
		}
		storedAt := entry.StoredAt
		if storedAt.IsZero() {
			storedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query, bucket, key, entry.Status, string(encoded), entry.Body, storedAt); err != nil {
			if isForeignKeyViolation(err) {
				return repository.ErrForeignKeyViolation
			}
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
