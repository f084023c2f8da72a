// Package configuration holds the registry configuration model. A
// configuration is read from YAML and scalar fields may be overridden with
// environment variables named after their YAML path, for example
// REGISTRY_HTTP_ADDR or REGISTRY_STORAGE_SYNC_POLICY.
package configuration

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const envPrefix = "REGISTRY"

// Configuration is a versioned registry configuration, intended to be
// provided by a yaml file, and optionally modified by environment variables.
type Configuration struct {
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
	Auth      Auth      `yaml:"auth,omitempty"`
	Storage   Storage   `yaml:"storage"`
	Database  Database  `yaml:"database,omitempty"`
	Redis     Redis     `yaml:"redis,omitempty"`
	Reporting Reporting `yaml:"reporting,omitempty"`
	Catalog   Catalog   `yaml:"catalog,omitempty"`
	Manifests Manifests `yaml:"manifests,omitempty"`
}

// Log configures the logger and the access log.
type Log struct {
	Level     string                 `yaml:"level,omitempty"`
	Formatter string                 `yaml:"formatter,omitempty"`
	Fields    map[string]interface{} `yaml:"fields,omitempty"`
	AccessLog struct {
		Disabled bool `yaml:"disabled,omitempty"`
	} `yaml:"accesslog,omitempty"`
}

// HTTP configures the registry HTTP server.
type HTTP struct {
	// Addr is the address the registry listens on.
	Addr string `yaml:"addr,omitempty"`
	// Host is the externally reachable base URL. Location and Link headers
	// are built from the request when it is empty.
	Host string `yaml:"host,omitempty"`
	// Prefix is prepended to every route.
	Prefix string `yaml:"prefix,omitempty"`
	// RelativeURLs makes Location headers relative.
	RelativeURLs bool `yaml:"relativeurls,omitempty"`
	// Realm is announced in challenges sent to anonymous callers denied by
	// the permission checker.
	Realm string `yaml:"realm,omitempty"`
	Debug struct {
		Addr string `yaml:"addr,omitempty"`
	} `yaml:"debug,omitempty"`
	RateLimit RateLimit `yaml:"ratelimit,omitempty"`
	// DrainTimeout bounds the graceful shutdown.
	DrainTimeout time.Duration `yaml:"draintimeout,omitempty"`
}

// RateLimit configures request throttling.
type RateLimit struct {
	Enabled        bool     `yaml:"enabled,omitempty"`
	Global         Limit    `yaml:"global,omitempty"`
	PerIP          Limit    `yaml:"perip,omitempty"`
	TrustedProxies []string `yaml:"trustedproxies,omitempty"`
}

// Limit is a token bucket.
type Limit struct {
	RPS   float64 `yaml:"rps,omitempty"`
	Burst int     `yaml:"burst,omitempty"`
}

// Parameters defines a key-value parameters mapping.
type Parameters map[string]interface{}

// Driver names one backend and its parameters.
type Driver map[string]Parameters

// Type returns the backend name, or an empty string when none is set.
func (d Driver) Type() string {
	for k := range d {
		return k
	}
	return ""
}

// Parameters returns the parameters of the backend.
func (d Driver) Parameters() Parameters {
	return d[d.Type()]
}

// UnmarshalYAML accepts either a bare backend name or a single-entry map of
// backend name to parameters.
func (d *Driver) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var m map[string]Parameters
	if err := unmarshal(&m); err == nil {
		if len(m) > 1 {
			types := make([]string, 0, len(m))
			for k := range m {
				types = append(types, k)
			}
			return fmt.Errorf("must provide exactly one driver type, provided: %v", types)
		}
		*d = m
		return nil
	}

	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	*d = Driver{name: Parameters{}}
	return nil
}

// Auth names the access controller.
type Auth = Driver

// Storage configures the node and blob drivers and the storage behavior.
type Storage struct {
	Nodes       Driver      `yaml:"nodes,omitempty"`
	Blobs       Driver      `yaml:"blobs,omitempty"`
	Sync        Sync        `yaml:"sync,omitempty"`
	Maintenance Maintenance `yaml:"maintenance,omitempty"`
}

// Sync configures manifest blob synchronization.
type Sync struct {
	// Policy is either "local" or "global".
	Policy string `yaml:"policy,omitempty"`
	// Concurrency bounds manifest list reference checks.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// Maintenance configures background storage jobs.
type Maintenance struct {
	UploadPurging UploadPurging `yaml:"uploadpurging,omitempty"`
}

// UploadPurging configures the removal of abandoned upload sessions.
type UploadPurging struct {
	Enabled  bool          `yaml:"enabled,omitempty"`
	Age      time.Duration `yaml:"age,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
	DryRun   bool          `yaml:"dryrun,omitempty"`
}

// Database configures the PostgreSQL connection used by the database node
// driver and the migrate command.
type Database struct {
	Host           string        `yaml:"host,omitempty"`
	Port           int           `yaml:"port,omitempty"`
	User           string        `yaml:"user,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	DBName         string        `yaml:"dbname,omitempty"`
	SSLMode        string        `yaml:"sslmode,omitempty"`
	ConnectTimeout time.Duration `yaml:"connecttimeout,omitempty"`
	Pool           struct {
		MaxIdle     int           `yaml:"maxidle,omitempty"`
		MaxOpen     int           `yaml:"maxopen,omitempty"`
		MaxLifetime time.Duration `yaml:"maxlifetime,omitempty"`
	} `yaml:"pool,omitempty"`
}

// Parameters returns the connection settings in the form taken by the
// database node driver.
func (d Database) Parameters() Parameters {
	return Parameters{
		"host":           d.Host,
		"port":           d.Port,
		"user":           d.User,
		"password":       d.Password,
		"dbname":         d.DBName,
		"sslmode":        d.SSLMode,
		"connecttimeout": d.ConnectTimeout,
		"pool": map[string]interface{}{
			"maxidle":     d.Pool.MaxIdle,
			"maxopen":     d.Pool.MaxOpen,
			"maxlifetime": d.Pool.MaxLifetime,
		},
	}
}

// Redis configures the global blob location cache. The cache is disabled
// when Addr is empty.
type Redis struct {
	Addr         string        `yaml:"addr,omitempty"`
	Password     string        `yaml:"password,omitempty"`
	DB           int           `yaml:"db,omitempty"`
	DialTimeout  time.Duration `yaml:"dialtimeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"readtimeout,omitempty"`
	WriteTimeout time.Duration `yaml:"writetimeout,omitempty"`
	TTL          time.Duration `yaml:"ttl,omitempty"`
}

// Reporting configures error reporting.
type Reporting struct {
	Sentry struct {
		Enabled     bool   `yaml:"enabled,omitempty"`
		DSN         string `yaml:"dsn,omitempty"`
		Environment string `yaml:"environment,omitempty"`
	} `yaml:"sentry,omitempty"`
}

// Catalog configures repository listing.
type Catalog struct {
	MaxEntries int `yaml:"maxentries,omitempty"`
}

// Manifests configures manifest handling.
type Manifests struct {
	MaxSize int64 `yaml:"maxsize,omitempty"`
}

// Defaults applied by Parse to unset fields.
const (
	DefaultAddr                  = ":5000"
	DefaultRealm                 = "registry"
	DefaultManifestMaxSize int64 = 4 << 20
	DefaultPurgeAge              = 168 * time.Hour
	DefaultPurgeInterval         = 24 * time.Hour
	DefaultRedisTTL              = 10 * time.Minute
	DefaultDrainTimeout          = 30 * time.Second
)

// Parse parses an input configuration yaml document into a Configuration
// struct and applies environment overrides and defaults.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := ioutil.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	config := new(Configuration)
	if err := yaml.UnmarshalStrict(in, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := overrideFromEnv(reflect.ValueOf(config).Elem(), envPrefix, os.Environ()); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Configuration) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultAddr
	}
	if c.HTTP.Realm == "" {
		c.HTTP.Realm = DefaultRealm
	}
	if c.HTTP.DrainTimeout == 0 {
		c.HTTP.DrainTimeout = DefaultDrainTimeout
	}
	if c.Storage.Nodes.Type() == "" {
		c.Storage.Nodes = Driver{"inmemory": Parameters{}}
	}
	if c.Manifests.MaxSize == 0 {
		c.Manifests.MaxSize = DefaultManifestMaxSize
	}
	if c.Storage.Maintenance.UploadPurging.Age == 0 {
		c.Storage.Maintenance.UploadPurging.Age = DefaultPurgeAge
	}
	if c.Storage.Maintenance.UploadPurging.Interval == 0 {
		c.Storage.Maintenance.UploadPurging.Interval = DefaultPurgeInterval
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}
}

func (c *Configuration) validate() error {
	if c.Storage.Blobs.Type() == "" {
		return errors.New("no blob storage configuration provided")
	}
	switch c.Storage.Sync.Policy {
	case "", "local", "global":
	default:
		return fmt.Errorf("unknown sync policy %q", c.Storage.Sync.Policy)
	}
	if c.Storage.Sync.Concurrency < 0 {
		return fmt.Errorf("sync concurrency must not be negative, got %d", c.Storage.Sync.Concurrency)
	}
	if c.Catalog.MaxEntries < 0 {
		return fmt.Errorf("catalog max entries must not be negative, got %d", c.Catalog.MaxEntries)
	}
	if c.Manifests.MaxSize < 0 {
		return fmt.Errorf("manifest max size must not be negative, got %d", c.Manifests.MaxSize)
	}
	if rl := c.HTTP.RateLimit; rl.Enabled && (rl.Global.RPS <= 0 || rl.PerIP.RPS <= 0) {
		return errors.New("rate limiting requires positive global and per-ip rps")
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideFromEnv walks the scalar fields of v and sets those named by a
// matching environment variable.
func overrideFromEnv(v reflect.Value, prefix string, environ []string) error {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		i := strings.Index(kv, "=")
		if i < 0 {
			continue
		}
		if strings.HasPrefix(kv[:i], prefix+"_") {
			env[kv[:i]] = kv[i+1:]
		}
	}
	if len(env) == 0 {
		return nil
	}
	return overrideStruct(v, prefix, env)
}

func overrideStruct(v reflect.Value, prefix string, env map[string]string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		key := prefix + "_" + strings.ToUpper(name)
		fv := v.Field(i)

		switch fv.Kind() {
		case reflect.Struct:
			if err := overrideStruct(fv, key, env); err != nil {
				return err
			}
			continue
		case reflect.Map:
			continue
		}

		value, ok := env[key]
		if !ok {
			continue
		}
		if err := setScalar(fv, value); err != nil {
			return fmt.Errorf("parsing environment variable %s: %w", key, err)
		}
	}
	return nil
}

func setScalar(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", v.Type())
		}
		v.Set(reflect.ValueOf(strings.Split(s, ",")))
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}
