// Package testutil provides helpers for database integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bkrepo/registry/migrations"
	"github.com/bkrepo/registry/registry/datastore"
)

// NewDSNFromEnv generates a new DSN for the test database based on
// environment variable configurations.
func NewDSNFromEnv() (*datastore.DSN, error) {
	port, err := strconv.Atoi(os.Getenv("REGISTRY_DATABASE_PORT"))
	if err != nil {
		return nil, fmt.Errorf("parsing DSN port: %w", err)
	}
	dsn := &datastore.DSN{
		Host:           os.Getenv("REGISTRY_DATABASE_HOST"),
		Port:           port,
		User:           os.Getenv("REGISTRY_DATABASE_USER"),
		Password:       os.Getenv("REGISTRY_DATABASE_PASSWORD"),
		DBName:         os.Getenv("REGISTRY_DATABASE_DBNAME"),
		SSLMode:        os.Getenv("REGISTRY_DATABASE_SSLMODE"),
		ConnectTimeout: 5 * time.Second,
	}

	return dsn, nil
}

// NewDBFromEnv opens the test database and brings its schema up to date.
func NewDBFromEnv() (*datastore.DB, error) {
	dsn, err := NewDSNFromEnv()
	if err != nil {
		return nil, err
	}

	db, err := datastore.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := migrations.NewMigrator(db.DB).Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

// TruncateAllTables removes every repository and node.
func TruncateAllTables(ctx context.Context, db *datastore.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE nodes, repositories RESTART IDENTITY CASCADE")
	return err
}
