// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// MigrationResult はマイグレーション実行前後のスキーマバージョン。
// 未適用の状態は0で表す。
type MigrationResult struct {
	FromVersion uint
	Version     uint
}

// Changed は今回の実行で新しいマイグレーションが適用されたかを返す。
func (r MigrationResult) Changed() bool {
	return r.FromVersion != r.Version
}

// RunMigrations はすべての未適用マイグレーションを適用し、前後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。前回の実行が途中で失敗してdirtyな場合は適用しない。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := currentVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}
	result := MigrationResult{FromVersion: from, Version: from}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return result, fmt.Errorf("failed to run migrations: %w", err)
	}

	if result.Version, err = currentVersion(m); err != nil {
		return result, err
	}
	return result, nil
}

// currentVersion は適用済みのバージョンを返す。dirtyな場合はエラーにする。
func currentVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration version %d is dirty; fix the schema and force the version", version)
	}
	return version, nil
}
