// Package store provides the unified database storage layer.
// All database operations should go through this package.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gridbot/logger"
)

// Store unified data storage interface
type Store struct {
	db *gorm.DB

	// Sub-stores (lazy initialization)
	grid  *GridStore
	order *OrderStore

	mu sync.RWMutex
}

// New creates a Store backed by a SQLite file
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db, "sqlite")
}

// NewFromEnv creates a Store from environment variables.
// DB_TYPE: sqlite (default) or postgres.
// For SQLite: DB_PATH (default: data/gridbot.db).
// For PostgreSQL: DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE.
func NewFromEnv() (*Store, error) {
	if os.Getenv("DB_TYPE") != "postgres" {
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "data/gridbot.db"
		}
		return New(path)
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		envOr("DB_NAME", "gridbot"),
		envOr("DB_SSLMODE", "disable"))

	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStore(db, "postgres")
}

// NewFromDB creates a Store over an existing connection, for tests
func NewFromDB(db *gorm.DB) (*Store, error) {
	return newStore(db, db.Dialector.Name())
}

func newStore(db *gorm.DB, dbType string) (*Store, error) {
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}
	logger.Infof("✅ Database initialized (type: %s)", dbType)
	return s, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// initTables migrates all tables
func (s *Store) initTables() error {
	return s.db.AutoMigrate(
		&GridStateModel{},
		&GridLevelModel{},
		&GridEventModel{},
		&RestingOrderModel{},
	)
}

// DB exposes the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Grid returns the grid state sub-store
func (s *Store) Grid() *GridStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grid == nil {
		s.grid = NewGridStore(s.db)
	}
	return s.grid
}

// Order returns the resting-order sub-store
func (s *Store) Order() *OrderStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		s.order = NewOrderStore(s.db)
	}
	return s.order
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
