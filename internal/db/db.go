// Package db opens the local sqlite database backing the offline-first
// stores. Store packages own their models and run their own migrations.
package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const dirPerm = 0o750

// DefaultPath resolves the platform-appropriate database file, creating the
// application data directory on first use.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve application data directory: %w", err)
	}
	dir := filepath.Join(base, "dealerdocs", "database")
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create database directory: %w", err)
	}
	return filepath.Join(dir, "dealerdocs.db"), nil
}

// Open connects to the sqlite database at path.
func Open(path string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return gdb, nil
}

// OpenMemory opens a private in-memory database, used by tests.
func OpenMemory() (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	// A single connection keeps every session on the same in-memory store.
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}
