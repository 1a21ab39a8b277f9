package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/model"
)

// setupSQLiteTestDB はマイグレーション適用済みのインメモリSQLiteを返す。
func setupSQLiteTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(db, database.DriverSQLite, ""))
	return db
}

// baseTime はテスト用の固定時刻。
var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestUser は外部キー制約を満たすためのユーザーを作成する。
func createTestUser(t *testing.T, db *sql.DB, id string) *model.User {
	t.Helper()

	user, err := NewSQLUserRepo(db).Upsert(t.Context(), &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "User " + id,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	})
	require.NoError(t, err)
	return user
}
