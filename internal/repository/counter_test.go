package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"loop/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCounterRepository_AdjustIsOneStatement(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCounterRepository(db)
	loopID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		`UPDATE loop_stats SET likes = CASE WHEN likes + $1 < 0 THEN 0 ELSE likes + $2 END, updated_at = $3 WHERE loop_id = $4 RETURNING likes`,
	)).
		WithArgs(int64(1), int64(1), sqlmock.AnyArg(), loopID).
		WillReturnRows(sqlmock.NewRows([]string{"likes"}).AddRow(4))

	n, err := repo.Adjust(context.Background(), loopID, models.CounterLikes, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepository_AdjustMissingLoop(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCounterRepository(db)

	mock.ExpectQuery(`UPDATE loop_stats SET branches`).
		WillReturnRows(sqlmock.NewRows([]string{"branches"}))

	_, err := repo.Adjust(context.Background(), uuid.New(), models.CounterBranches, -1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepository_RejectsUnknownCounter(t *testing.T) {
	db, _ := setupMockDB(t)
	_, err := NewCounterRepository(db).Adjust(context.Background(), uuid.New(), "likes; DROP TABLE loops", 1)
	assert.Error(t, err)
}

func TestCounterRepository_ClampsAtZero(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCounterRepository(db)
	author := createProfile(t, db)
	loop := createRootLoop(t, db, author.ID, time.Now().UTC())

	n, err := repo.Adjust(context.Background(), loop.ID, models.CounterComments, -1)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.Adjust(context.Background(), loop.ID, models.CounterComments, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCounterRepository_ConcurrentAdjust(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCounterRepository(db)
	author := createProfile(t, db)
	loop := createRootLoop(t, db, author.ID, time.Now().UTC())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Adjust(context.Background(), loop.ID, models.CounterViews, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := repo.Get(context.Background(), loop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.Views)
}

func TestCounterRepository_GetMany(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewCounterRepository(db)
	author := createProfile(t, db)
	a := createRootLoop(t, db, author.ID, time.Now().UTC())
	b := createRootLoop(t, db, author.ID, time.Now().UTC())

	_, err := repo.Adjust(context.Background(), b.ID, models.CounterSaves, 1)
	require.NoError(t, err)

	got, err := repo.GetMany(context.Background(), []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(1), got[b.ID].Saves)

	empty, err := repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
