// Package storage owns the database connection. Callers construct it once and pass it down.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"game-battle-service/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the gorm handle with an explicit Close.
type DB struct {
	*gorm.DB
}

// PoolConfig tunes the underlying sql.DB pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var DefaultPool = PoolConfig{MaxOpenConns: 16, MaxIdleConns: 8, ConnMaxLifetime: 30 * time.Minute}

// OpenPostgres connects to postgres and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}
	return Open(ctx, postgres.Open(dsn), pool)
}

// Open connects through any gorm dialector (tests use SQLite).
func Open(ctx context.Context, dialector gorm.Dialector, pool PoolConfig) (*DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return &DB{DB: gdb}, nil
}

// Migrate creates or updates every table.
func (d *DB) Migrate() error {
	if err := d.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the pool. Safe on nil.
func (d *DB) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
