// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// migrationsDir はドライバに対応するマイグレーションディレクトリを返す。
func migrationsDir(driver Driver) string {
	if driver.IsSQLite() {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// PostgreSQLはdatabaseURLから専用接続を張り、SQLiteは既存のdbをそのまま使う。
func NewMigrator(db *sql.DB, driver Driver, databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, migrationsDir(driver))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	if driver.IsSQLite() {
		instance, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite migration driver: %w", err)
		}
		m, err := migrate.NewWithInstance("iofs", source, "sqlite", instance)
		if err != nil {
			return nil, fmt.Errorf("failed to create migrator: %w", err)
		}
		return m, nil
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(db *sql.DB, driver Driver, databaseURL string) error {
	m, err := NewMigrator(db, driver, databaseURL)
	if err != nil {
		return err
	}
	// SQLiteドライバのCloseは呼び出し元のdbまで閉じてしまう。
	if !driver.IsSQLite() {
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
