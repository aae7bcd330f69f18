// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// migrationsDir はDialectごとのマイグレーションディレクトリを返す。
func migrationsDir(d Dialect) string {
	return "migrations/" + string(d)
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLのスキームからPostgreSQL用またはSQLite用のマイグレーションを選択する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	dialect, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationsFS, migrationsDir(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
