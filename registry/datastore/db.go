// Package datastore implements the node driver on a PostgreSQL database.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	// register the pgx database/sql driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

const driverName = "pgx"

// Queryer is the common interface to execute queries on a database.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DB is a database handle that implements Queryer.
type DB struct {
	*sql.DB
	DSN *DSN
}

// BeginTx wraps sql.Tx from the innner sql.DB within a datastore.Tx.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	return &Tx{tx}, err
}

// Tx is a database transaction that implements Queryer.
type Tx struct {
	*sql.Tx
}

// Savepoint creates a named savepoint inside the transaction.
func (tx *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := tx.ExecContext(ctx, "SAVEPOINT "+name)
	return err
}

// RollbackTo rolls back the transaction to a named savepoint.
func (tx *Tx) RollbackTo(ctx context.Context, name string) error {
	_, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return err
}

// DSN represents the Data Source Name parameters for a DB connection.
type DSN struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ConnectTimeout time.Duration
}

// String builds the key/value connection string for the pgx driver.
// Values are quoted when needed.
func (dsn *DSN) String() string {
	var params []string

	add := func(key, value string) {
		if value == "" {
			return
		}
		if strings.ContainsAny(value, ` '\`) {
			value = strings.ReplaceAll(value, `\`, `\\`)
			value = strings.ReplaceAll(value, `'`, `\'`)
			value = "'" + value + "'"
		}
		params = append(params, key+"="+value)
	}

	add("host", dsn.Host)
	if dsn.Port > 0 {
		add("port", strconv.Itoa(dsn.Port))
	}
	add("user", dsn.User)
	add("password", dsn.Password)
	add("dbname", dsn.DBName)
	add("sslmode", dsn.SSLMode)
	if dsn.ConnectTimeout > 0 {
		add("connect_timeout", strconv.Itoa(int(dsn.ConnectTimeout.Seconds())))
	}

	return strings.Join(params, " ")
}

// Address returns the host:port pair of the database, for logging.
func (dsn *DSN) Address() string {
	if dsn.Port > 0 {
		return net.JoinHostPort(dsn.Host, strconv.Itoa(dsn.Port))
	}
	return dsn.Host
}

// PoolConfig configures the connection pool of a DB.
type PoolConfig struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
}

type openOpts struct {
	logger       *logrus.Entry
	pool         *PoolConfig
	pingAttempts uint64
}

// OpenOption is used to pass options to Open.
type OpenOption func(*openOpts)

// WithLogger configures the logger used while connecting.
func WithLogger(l *logrus.Entry) OpenOption {
	return func(opts *openOpts) {
		opts.logger = l
	}
}

// WithPoolConfig configures the connection pool.
func WithPoolConfig(c *PoolConfig) OpenOption {
	return func(opts *openOpts) {
		opts.pool = c
	}
}

// WithPingAttempts sets how many times the database is pinged before Open
// gives up.
func WithPingAttempts(n uint64) OpenOption {
	return func(opts *openOpts) {
		opts.pingAttempts = n
	}
}

var defaultLogger = logrus.New()

// Open creates a database connection handler and verifies it is usable.
func Open(dsn *DSN, opts ...OpenOption) (*DB, error) {
	config := &openOpts{
		logger:       logrus.NewEntry(defaultLogger),
		pingAttempts: 1,
	}
	for _, opt := range opts {
		opt(config)
	}

	db, err := sql.Open(driverName, dsn.String())
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if config.pool != nil {
		db.SetMaxIdleConns(config.pool.MaxIdle)
		db.SetMaxOpenConns(config.pool.MaxOpen)
		db.SetConnMaxLifetime(config.pool.MaxLifetime)
	}

	if config.pingAttempts < 1 {
		config.pingAttempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), config.pingAttempts-1)
	ping := func() error {
		if err := db.Ping(); err != nil {
			config.logger.WithError(err).WithField("address", dsn.Address()).Warn("database not reachable")
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, b); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	return &DB{DB: db, DSN: dsn}, nil
}
