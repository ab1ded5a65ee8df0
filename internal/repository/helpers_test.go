package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"loop/internal/database"
	"loop/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLiteDB returns a private in-memory database with the SQL migrations
// applied. A single connection keeps every query on the same memory database.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(context.Background(), db))
	return db
}

// setupConcurrentSQLiteDB returns a file-backed WAL database with a pool of
// connections so concurrent transactions run on separate connections. Write
// transactions take the lock at BEGIN and wait for it instead of failing.
func setupConcurrentSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "loop.db") +
		"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.RunMigrations(context.Background(), db))
	return db
}

var profileSeq int

func createProfile(t *testing.T, db *gorm.DB) *models.Profile {
	t.Helper()
	profileSeq++
	p := &models.Profile{ID: uuid.New(), Username: fmt.Sprintf("user%d", profileSeq), Coins: 100}
	require.NoError(t, db.Create(p).Error)
	return p
}

func textContent(s string) models.Content {
	return models.Content{Type: models.ContentText, Text: s}
}

func createRootLoop(t *testing.T, db *gorm.DB, author uuid.UUID, createdAt time.Time) *models.Loop {
	t.Helper()
	loop := &models.Loop{AuthorID: author, Content: textContent("hello"), CreatedAt: createdAt}
	require.NoError(t, NewLoopRepository(db).Create(context.Background(), loop))
	return loop
}

func createBranchLoop(t *testing.T, db *gorm.DB, author uuid.UUID, parent *models.Loop) *models.Loop {
	t.Helper()
	loop := &models.Loop{
		AuthorID: author,
		ParentID: &parent.ID,
		Depth:    parent.Depth + 1,
		Content:  textContent("reply"),
	}
	require.NoError(t, NewLoopRepository(db).Create(context.Background(), loop))
	return loop
}

func loopIDs(loops []*models.Loop) []uuid.UUID {
	ids := make([]uuid.UUID, len(loops))
	for i, l := range loops {
		ids[i] = l.ID
	}
	return ids
}
