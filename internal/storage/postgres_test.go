package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

var columns = []string{"id", "owner_id", "display_name", "kind", "duration_ms", "content_ref", "content_type", "created_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, logger.New(logger.LevelOff, nil)), mock
}

func TestPostgresInsert(t *testing.T) {
	store, mock := newMockStore(t)
	rec := &domain.LullabyRecord{
		ID: "rec-1", OwnerID: "nursery", DisplayName: "Lullaby 1", Kind: domain.KindRecorded,
		Duration: 2500 * time.Millisecond, ContentRef: "ref", ContentType: "audio/wav", CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta(insertRecordSQL)).
		WithArgs("rec-1", "nursery", "Lullaby 1", "recorded", int64(2500), "ref", "audio/wav", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(getRecordSQL)).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("rec-1", "nursery", "Stars", "generated", int64(61000), "ref", "audio/mpeg", created))

	rec, err := store.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindGenerated, rec.Kind)
	assert.Equal(t, 61*time.Second, rec.Duration)
	assert.True(t, rec.CreatedAt.Equal(created))

	mock.ExpectQuery(regexp.QuoteMeta(getRecordSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM lullabies WHERE owner_id = \$1 AND kind = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("nursery", "recorded", 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("b", "nursery", "Lullaby 2", "recorded", int64(1000), "r2", "audio/wav", now).
			AddRow("a", "nursery", "Lullaby 1", "recorded", int64(1000), "r1", "audio/wav", now.Add(-time.Hour)))

	got, err := store.Find(context.Background(), domain.RecordFilter{OwnerID: "nursery", Kind: domain.KindRecorded, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindWithoutFilter(t *testing.T) {
	query, args := findQuery(domain.RecordFilter{})
	assert.Equal(t, "SELECT "+recordColumns+" FROM lullabies ORDER BY created_at DESC, id DESC", query)
	assert.Empty(t, args)
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteRecordSQL)).WithArgs("rec-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteRecordSQL)).WithArgs("rec-1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "rec-1"))
	assert.ErrorIs(t, store.Delete(context.Background(), "rec-1"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
