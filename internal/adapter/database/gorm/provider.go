// Package gorm implements the database abstraction on GORM. Driver
// subpackages register a dialector for their type in init.
package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	"github.com/tigerroll/bikeshare/internal/support/configbinder"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// DialectorFactory generates a gorm.Dialector from a DatabaseConfig.
type DialectorFactory func(cfg database.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory for dbType.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// BaseProvider opens and caches GORM connections of one type from the
// "database" configuration section.
type BaseProvider struct {
	configs     map[string]interface{}
	dbType      string
	sqlLogLevel string

	connections map[string]database.Connection
	mu          sync.RWMutex
}

var _ database.Provider = (*BaseProvider)(nil)

// NewBaseProvider creates a provider. sqlLogLevel is the GORM log level used
// when a connection does not set its own.
func NewBaseProvider(configs map[string]interface{}, dbType, sqlLogLevel string) *BaseProvider {
	return &BaseProvider{
		configs:     configs,
		dbType:      dbType,
		sqlLogLevel: sqlLogLevel,
		connections: make(map[string]database.Connection),
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.Connection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	var cfg database.DatabaseConfig
	if err := configbinder.BindNamed(p.configs, name, &cfg); err != nil {
		return nil, fmt.Errorf("database connection '%s': %w", name, err)
	}
	if cfg.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, cfg.Type, name)
	}
	if cfg.SQLLogLevel == "" {
		cfg.SQLLogLevel = p.sqlLogLevel
	}

	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection '%s': %w", name, err)
	}
	conn, err = NewConnection(db, cfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, p.dbType)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var multiErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			multiErr = multierror.Append(multiErr, err)
		}
		delete(p.connections, name)
	}
	return multiErr
}

// Connect opens a GORM connection for cfg through the registered dialector and applies pool settings.
func Connect(cfg database.DatabaseConfig) (*gorm.DB, error) {
	factory, err := GetDialectorFactory(cfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", cfg.Type, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewGormLogger(cfg.SQLLogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
	}
	if cfg.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
	}
	if cfg.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}

// gormConnection implements database.Connection.
type gormConnection struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   database.DatabaseConfig
	name  string
}

// NewConnection wraps an open GORM handle.
func NewConnection(db *gorm.DB, cfg database.DatabaseConfig, name string) (database.Connection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &gormConnection{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

func (c *gormConnection) Type() string                    { return c.cfg.Type }
func (c *gormConnection) Name() string                    { return c.name }
func (c *gormConnection) Config() database.DatabaseConfig { return c.cfg }
func (c *gormConnection) SQLDB() (*sql.DB, error)         { return c.sqlDB, nil }
func (c *gormConnection) DB(ctx context.Context) *gorm.DB { return c.db.WithContext(ctx) }

func (c *gormConnection) Close() error {
	logger.Debugf("Closing DB connection '%s'.", c.name)
	return c.sqlDB.Close()
}
