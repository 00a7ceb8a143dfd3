// Package db opens the gorm connection: PostgreSQL when DATABASE_URL names a
// postgres server, otherwise the pure-Go SQLite driver for local runs and tests.
package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"heftcoder/internal/secrets"
	"heftcoder/pkg/models"
)

// Dialect names the SQL backend in use.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DefaultSQLitePath is used when no DATABASE_URL is configured.
const DefaultSQLitePath = "heftcoder.db"

// Database wraps the GORM database instance
type Database struct {
	DB      *gorm.DB
	dialect Dialect
	log     *zap.Logger
}

// Config holds database configuration
type Config struct {
	// URL is a postgres URL or DSN, or a SQLite path (optionally prefixed
	// with sqlite://). ":memory:" opens a private in-memory database.
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogQueries logs every statement at info level.
	LogQueries bool
}

// DefaultConfig returns default database configuration
func DefaultConfig() Config {
	return Config{
		URL:             DefaultSQLitePath,
		MaxOpenConns:    50,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// DetectDialect picks the driver for url.
func DetectDialect(url string) Dialect {
	u := strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return DialectPostgres
	case strings.Contains(u, "host=") && strings.Contains(u, "dbname="):
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects and runs migrations.
func Open(cfg Config, log *zap.Logger) (*Database, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("db")

	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	dialect := DetectDialect(cfg.URL)
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(cfg.URL)
	default:
		path := strings.TrimPrefix(strings.TrimSpace(cfg.URL), "sqlite://")
		if path == "" {
			path = DefaultSQLitePath
		}
		dialector = sqlite.Open(path)
	}

	gdb, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer; an in-memory database is also private to its connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	database := &Database{DB: gdb, dialect: dialect, log: log}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("database connected", zap.String("dialect", string(dialect)))
	return database, nil
}

// Migrate creates or updates the tables.
func (d *Database) Migrate() error {
	err := d.DB.AutoMigrate(
		&models.PublishedPage{},
		&secrets.Secret{},
		&secrets.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Dialect reports the backend in use.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// Health checks database connectivity
func (d *Database) Health() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetStats returns database connection statistics
func (d *Database) GetStats() map[string]interface{} {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"dialect":              string(d.dialect),
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}
