package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

var _ domain.RecordStore = (*PostgresStore)(nil)

const recordColumns = "id, owner_id, display_name, kind, duration_ms, content_ref, content_type, created_at"

const (
	insertRecordSQL = "INSERT INTO lullabies (" + recordColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"
	getRecordSQL    = "SELECT " + recordColumns + " FROM lullabies WHERE id = $1"
	deleteRecordSQL = "DELETE FROM lullabies WHERE id = $1"
)

// PostgresStore keeps lullaby records in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenPostgres opens a lib/pq connection pool and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps an open pool. Run Migrate first.
func NewPostgresStore(db *sql.DB, log *logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// Insert implements domain.RecordStore.
func (s *PostgresStore) Insert(ctx context.Context, rec *domain.LullabyRecord) error {
	_, err := s.db.ExecContext(ctx, insertRecordSQL,
		rec.ID, rec.OwnerID, rec.DisplayName, string(rec.Kind),
		rec.Duration.Milliseconds(), rec.ContentRef, rec.ContentType, rec.CreatedAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	s.log.Debug("postgres: inserted record %s", rec.ID)
	return nil
}

// Get implements domain.RecordStore.
func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.LullabyRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, getRecordSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %s: %w", id, err)
	}
	return rec, nil
}

// Find implements domain.RecordStore. Results are newest first.
func (s *PostgresStore) Find(ctx context.Context, filter domain.RecordFilter) ([]*domain.LullabyRecord, error) {
	query, args := findQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}
	defer rows.Close()

	var out []*domain.LullabyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// Delete implements domain.RecordStore.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, deleteRecordSQL, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	s.log.Debug("postgres: deleted record %s", id)
	return nil
}

func findQuery(f domain.RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM lullabies")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.LullabyRecord, error) {
	var (
		rec        domain.LullabyRecord
		kind       string
		durationMs int64
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.DisplayName, &kind,
		&durationMs, &rec.ContentRef, &rec.ContentType, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.LullabyKind(kind)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}
