package dbmanager

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite"     // SQLite driver, registered as "sqlite"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/microsoft/go-mssqldb" // MSSQL driver
	"github.com/uptrace/bun"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/common/adapters/database"
	"github.com/bitechdev/ModelSpec/pkg/config"
	"github.com/bitechdev/ModelSpec/pkg/logger"
)

const (
	retryAttempts = 3
	retryDelay    = time.Second
	retryMaxDelay = 10 * time.Second
)

// Connection owns one *sql.DB and the adapter requests run through.
type Connection struct {
	settings settings
	sqlDB    *sql.DB
	db       common.Database

	mu              sync.RWMutex
	closed          bool
	lastHealthCheck time.Time
	healthy         bool
	stopHealth      context.CancelFunc
}

// Open connects according to cfg, retrying with exponential backoff, and
// wraps the pool in the configured ORM adapter.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	s, err := newSettings(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := connect(ctx, s)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(s.maxOpenConns)
	sqlDB.SetMaxIdleConns(s.maxIdleConns)
	sqlDB.SetConnMaxLifetime(s.connMaxLifetime)

	db, err := wrap(sqlDB, s)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	logger.Info("Database connection established: type=%s, orm=%s", s.dbType, s.orm)
	return &Connection{settings: s, sqlDB: sqlDB, db: db, healthy: true, lastHealthCheck: time.Now()}, nil
}

func connect(ctx context.Context, s settings) (*sql.DB, error) {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt, retryDelay, retryMaxDelay)
			logger.Info("Retrying %s connection: attempt=%d/%d, delay=%v", s.dbType, attempt+1, retryAttempts, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		db, err := sql.Open(s.dbType.driverName(), s.dsn)
		if err != nil {
			lastErr = err
			logger.Warn("Failed to open %s connection: %v", s.dbType, err)
			continue
		}

		connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
		err = db.PingContext(connectCtx)
		cancel()
		if err != nil {
			lastErr = err
			db.Close()
			logger.Warn("Failed to ping %s database: %v", s.dbType, err)
			continue
		}
		if attempt > 0 {
			recordReconnectAttempt(s.dbType, true)
		}
		return db, nil
	}
	recordReconnectAttempt(s.dbType, false)
	return nil, &ConnectionError{Type: s.dbType, Operation: "connect", Attempts: retryAttempts, Err: lastErr}
}

func wrap(sqlDB *sql.DB, s settings) (common.Database, error) {
	driver := string(s.dbType)
	switch s.orm {
	case ORMTypeGORM:
		dialector, err := database.GormDialector(driver, sqlDB)
		if err != nil {
			return nil, &ConnectionError{Type: s.dbType, Operation: "gorm dialector", Err: err}
		}
		gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
		if err != nil {
			return nil, &ConnectionError{Type: s.dbType, Operation: "gorm open", Err: err}
		}
		adapter := database.NewGormAdapter(gdb)
		if s.queryDebug {
			adapter.EnableQueryDebug()
		}
		return adapter, nil
	case ORMTypeBun:
		dialect, err := database.BunDialect(driver)
		if err != nil {
			return nil, &ConnectionError{Type: s.dbType, Operation: "bun dialect", Err: err}
		}
		adapter := database.NewBunAdapter(bun.NewDB(sqlDB, dialect))
		if s.queryDebug {
			adapter.EnableQueryDebug()
		}
		return adapter, nil
	}
	return nil, ErrUnsupportedORM
}

// Database returns the adapter handlers query through.
func (c *Connection) Database() common.Database {
	return c.db
}

// Native returns the underlying pool.
func (c *Connection) Native() *sql.DB {
	return c.sqlDB
}

// Type returns the configured database type.
func (c *Connection) Type() DatabaseType {
	return c.settings.dbType
}

// HealthCheck pings the database and records the outcome.
func (c *Connection) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConnectionClosed
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.sqlDB.PingContext(healthCtx)

	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.healthy = err == nil
	c.mu.Unlock()

	if err != nil {
		return &ConnectionError{Type: c.settings.dbType, Operation: "health check", Err: err}
	}
	return nil
}

// StartHealthCheck pings every interval until ctx is done or the connection
// closes, publishing pool metrics after each check.
func (c *Connection) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.stopHealth != nil {
		c.stopHealth()
	}
	c.stopHealth = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.HandlePanic("dbmanager.StartHealthCheck", r)
			}
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.HealthCheck(ctx); err != nil {
					logger.Warn("Database health check failed: %v", err)
				}
				c.PublishMetrics()
			}
		}
	}()
}

// Stats describes the pool at this moment.
func (c *Connection) Stats() ConnectionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := ConnectionStats{
		Type:            c.settings.dbType,
		ORM:             c.settings.orm,
		Connected:       !c.closed,
		Healthy:         c.healthy && !c.closed,
		LastHealthCheck: c.lastHealthCheck,
	}
	if !c.closed {
		stats.DBStats = c.sqlDB.Stats()
	}
	return stats
}

// Close stops health checks and closes the pool. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if c.stopHealth != nil {
		c.stopHealth()
	}
	c.closed = true
	if err := c.sqlDB.Close(); err != nil {
		return &ConnectionError{Type: c.settings.dbType, Operation: "close", Err: err}
	}
	logger.Info("Database connection closed: type=%s", c.settings.dbType)
	return nil
}

// ConnectionStats contains statistics about a database connection
type ConnectionStats struct {
	Type            DatabaseType
	ORM             ORMType
	Connected       bool
	Healthy         bool
	LastHealthCheck time.Time
	sql.DBStats
}

// calculateBackoff calculates exponential backoff delay
func calculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial * time.Duration(math.Pow(2, float64(attempt)))
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
