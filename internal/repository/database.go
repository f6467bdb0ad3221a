// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/levellist/internal/config"
	"github.com/aimd54/levellist/internal/models"
	"github.com/aimd54/levellist/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB opens the configured database (PostgreSQL, or SQLite for local runs).
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	gormLogLevel := gormlogger.Warn
	if log.IsDebug() {
		gormLogLevel = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
	case "postgres", "":
		pg := cfg.Postgres
		dialector = postgres.Open(fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode,
		))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; one connection keeps transactions from
		// failing with "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", dialector.Name()).
		Msg("Connected to database")

	return &DB{db}, nil
}

// AutoMigrate runs database migrations for all models.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.Level{},
		&models.Record{},
		&models.User{},
		&models.LevelHistory{},
	)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db      *DB
	Levels  *LevelRepository
	Records *RecordRepository
	Users   *UserRepository
	History *HistoryRepository
}

// NewStore creates the repositories on top of db.
func NewStore(db *DB) *Store {
	return &Store{
		db:      db,
		Levels:  NewLevelRepository(db),
		Records: NewRecordRepository(db),
		Users:   NewUserRepository(db),
		History: NewHistoryRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(&DB{tx}))
	})
}

// DB returns the underlying connection.
func (s *Store) DB() *DB {
	return s.db
}
