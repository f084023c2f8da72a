package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/base"
	"github.com/bkrepo/registry/registry/storage/driver/factory"
	"github.com/mitchellh/mapstructure"
)

// DriverName is the name the database node driver registers with.
const DriverName = "database"

// DriverParameters represents all configuration options available for the
// database node driver.
type DriverParameters struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	ConnectTimeout time.Duration `mapstructure:"connecttimeout"`
	PingAttempts   uint64        `mapstructure:"pingattempts"`
	Pool           struct {
		MaxIdle     int           `mapstructure:"maxidle"`
		MaxOpen     int           `mapstructure:"maxopen"`
		MaxLifetime time.Duration `mapstructure:"maxlifetime"`
	} `mapstructure:"pool"`
}

func init() {
	factory.RegisterNodeDriver(DriverName, &databaseDriverFactory{})
}

type databaseDriverFactory struct{}

func (f *databaseDriverFactory) Create(parameters map[string]interface{}) (storagedriver.NodeDriver, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil {
		return nil, err
	}

	db, err := Open(&DSN{
		Host:           params.Host,
		Port:           params.Port,
		User:           params.User,
		Password:       params.Password,
		DBName:         params.DBName,
		SSLMode:        params.SSLMode,
		ConnectTimeout: params.ConnectTimeout,
	},
		WithPoolConfig(&PoolConfig{
			MaxIdle:     params.Pool.MaxIdle,
			MaxOpen:     params.Pool.MaxOpen,
			MaxLifetime: params.Pool.MaxLifetime,
		}),
		WithPingAttempts(params.PingAttempts),
	)
	if err != nil {
		return nil, err
	}

	return NewNodes(db), nil
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	params := &DriverParameters{SSLMode: "disable", PingAttempts: 1}

	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           params,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(parameters); err != nil {
		return nil, fmt.Errorf("decoding database parameters: %w", err)
	}
	if params.Host == "" {
		return nil, errors.New("database host cannot be empty")
	}
	if params.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	return params, nil
}

// Nodes is a NodeDriver backed by a PostgreSQL database.
type Nodes struct {
	*base.NodeBase

	db *DB
}

var _ storagedriver.NodeDriver = &Nodes{}

// NewNodes returns a node driver on db. The schema must be migrated.
func NewNodes(db *DB) *Nodes {
	return &Nodes{NodeBase: base.NewNodeBase(&driver{nodeStore: &nodeStore{db: db}, repos: &repositoryStore{db: db}}), db: db}
}

// DB returns the handle the driver runs on.
func (n *Nodes) DB() *DB {
	return n.db
}

type driver struct {
	*nodeStore
	repos *repositoryStore
}

func (d *driver) Name() string {
	return DriverName
}

func (d *driver) Repository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	return d.repos.FindByName(ctx, projectID, repoName)
}

func (d *driver) CreateRepository(ctx context.Context, projectID, repoName string) (*storagedriver.Repository, error) {
	return d.repos.SafeFindOrCreate(ctx, projectID, repoName)
}
