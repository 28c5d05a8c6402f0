// Package storage persists thread mappings and push backups in an embedded
// SQLite database next to the vault.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"ArticleStock/internal/domain"
	"ArticleStock/internal/ports"
)

// ErrMappingNotFound reports a thread identifier with no recorded article.
var ErrMappingNotFound = errors.New("thread mapping not found")

const schema = `
CREATE TABLE IF NOT EXISTS thread_mappings (
    thread_id  TEXT PRIMARY KEY,
    filename   TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS push_backups (
    id         TEXT PRIMARY KEY,
    filename   TEXT NOT NULL,
    content    TEXT NOT NULL,
    reason     TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);`

// SQLiteStore implements ports.StateStore over an embedded database.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.StateStore = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMapping records a thread-to-article association. Mappings are
// read-only after creation; replays of the same thread id are ignored.
func (s *SQLiteStore) SaveMapping(ctx context.Context, m domain.ThreadMapping) error {
	query, args, err := sq.Insert("thread_mappings").
		Options("OR IGNORE").
		Columns("thread_id", "filename", "created_at").
		Values(m.ThreadID, m.Filename, m.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mapping insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save mapping %s: %w", m.ThreadID, err)
	}
	return nil
}

// LookupMapping resolves a thread identifier to its article filename.
func (s *SQLiteStore) LookupMapping(ctx context.Context, threadID string) (domain.ThreadMapping, error) {
	query, args, err := sq.Select("thread_id", "filename", "created_at").
		From("thread_mappings").
		Where(sq.Eq{"thread_id": threadID}).
		ToSql()
	if err != nil {
		return domain.ThreadMapping{}, fmt.Errorf("build mapping select: %w", err)
	}

	var m domain.ThreadMapping
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&m.ThreadID, &m.Filename, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThreadMapping{}, fmt.Errorf("%w: %s", ErrMappingNotFound, threadID)
	}
	if err != nil {
		return domain.ThreadMapping{}, fmt.Errorf("lookup mapping %s: %w", threadID, err)
	}
	m.CreatedAt = createdAt
	return m, nil
}

// SaveBackup durably records a document whose push retries were exhausted.
func (s *SQLiteStore) SaveBackup(ctx context.Context, b domain.PendingPushBackup) error {
	query, args, err := sq.Insert("push_backups").
		Columns("id", "filename", "content", "reason", "created_at").
		Values(b.ID, b.Filename, b.Content, b.Reason, b.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build backup insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save backup %s: %w", b.ID, err)
	}
	return nil
}

// ListBackups returns all recorded backups, oldest first. Used by manual
// recovery tooling and tests.
func (s *SQLiteStore) ListBackups(ctx context.Context) ([]domain.PendingPushBackup, error) {
	query, args, err := sq.Select("id", "filename", "content", "reason", "created_at").
		From("push_backups").
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build backup select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []domain.PendingPushBackup
	for rows.Next() {
		var b domain.PendingPushBackup
		if err := rows.Scan(&b.ID, &b.Filename, &b.Content, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return backups, nil
}
