package database

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PersistenceError wraps a failed write or read for a single listing.
type PersistenceError struct {
	Op        string
	ListingID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.ListingID == "" {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s listing %s: %v", e.Op, e.ListingID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Database is the persistence gateway. One handle is held for a whole run.
type Database struct {
	db        *gorm.DB
	closeOnce sync.Once
	closeErr  error
}

// Open connects with the given driver ("sqlite" or "postgres") and DSN.
func Open(driver, dsn string) (*Database, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if dialector.Name() == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql handle: %w", err)
		}
		// sqlite allows one writer; the pipeline is sequential anyway
		sqlDB.SetMaxOpenConns(1)
	}

	return &Database{db: db}, nil
}

// NewTestDB opens a private in-memory sqlite database.
func NewTestDB() (*Database, error) {
	return Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
}

// Migrate brings the schema up to date.
func (d *Database) Migrate() error {
	return MigrateSchema(d.db)
}

// Close releases the connection. Later calls return the first result.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		sqlDB, err := d.db.DB()
		if err != nil {
			d.closeErr = err
			return
		}
		d.closeErr = sqlDB.Close()
	})
	return d.closeErr
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
