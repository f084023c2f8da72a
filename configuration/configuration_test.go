package configuration

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const configYamlV1 = `
log:
  level: debug
  formatter: json
  fields:
    service: registry
http:
  addr: :5005
  prefix: /registry
  debug:
    addr: localhost:5001
auth:
  htpasswd:
    realm: basic-realm
    path: /etc/registry/htpasswd
storage:
  nodes: inmemory
  blobs:
    s3:
      region: us-east-1
      bucket: blobs
  sync:
    policy: global
    concurrency: 4
  maintenance:
    uploadpurging:
      enabled: true
      age: 72h
      interval: 1h
redis:
  addr: localhost:6379
  ttl: 5m
catalog:
  maxentries: 100
`

func TestParse(t *testing.T) {
	config, err := Parse(strings.NewReader(configYamlV1))
	require.NoError(t, err)

	require.Equal(t, "debug", config.Log.Level)
	require.Equal(t, "json", config.Log.Formatter)
	require.Equal(t, map[string]interface{}{"service": "registry"}, config.Log.Fields)
	require.Equal(t, ":5005", config.HTTP.Addr)
	require.Equal(t, "/registry", config.HTTP.Prefix)
	require.Equal(t, "localhost:5001", config.HTTP.Debug.Addr)

	require.Equal(t, "htpasswd", config.Auth.Type())
	require.Equal(t, "basic-realm", config.Auth.Parameters()["realm"])

	require.Equal(t, "inmemory", config.Storage.Nodes.Type())
	require.Equal(t, "s3", config.Storage.Blobs.Type())
	require.Equal(t, "blobs", config.Storage.Blobs.Parameters()["bucket"])
	require.Equal(t, "global", config.Storage.Sync.Policy)
	require.Equal(t, 4, config.Storage.Sync.Concurrency)

	purging := config.Storage.Maintenance.UploadPurging
	require.True(t, purging.Enabled)
	require.Equal(t, 72*time.Hour, purging.Age)
	require.Equal(t, time.Hour, purging.Interval)

	require.Equal(t, "localhost:6379", config.Redis.Addr)
	require.Equal(t, 5*time.Minute, config.Redis.TTL)
	require.Equal(t, 100, config.Catalog.MaxEntries)

	// defaults
	require.Equal(t, DefaultRealm, config.HTTP.Realm)
	require.Equal(t, DefaultManifestMaxSize, config.Manifests.MaxSize)
}

func TestParse_Defaults(t *testing.T) {
	config, err := Parse(strings.NewReader("storage:\n  blobs: inmemory\n"))
	require.NoError(t, err)

	require.Equal(t, DefaultAddr, config.HTTP.Addr)
	require.Equal(t, "inmemory", config.Storage.Nodes.Type())
	require.Equal(t, DefaultPurgeAge, config.Storage.Maintenance.UploadPurging.Age)
	require.Equal(t, DefaultPurgeInterval, config.Storage.Maintenance.UploadPurging.Interval)
	require.Equal(t, DefaultRedisTTL, config.Redis.TTL)
	require.Equal(t, DefaultDrainTimeout, config.HTTP.DrainTimeout)
	require.Empty(t, config.Auth.Type())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
		err    string
	}{
		{
			name:   "no blobs",
			config: "http:\n  addr: :5000\n",
			err:    "no blob storage configuration provided",
		},
		{
			name:   "two blob drivers",
			config: "storage:\n  blobs:\n    s3: {}\n    filesystem: {}\n",
			err:    "must provide exactly one driver type",
		},
		{
			name:   "sync policy",
			config: "storage:\n  blobs: inmemory\n  sync:\n    policy: remote\n",
			err:    `unknown sync policy "remote"`,
		},
		{
			name:   "unknown field",
			config: "storage:\n  blobs: inmemory\nfoo: bar\n",
			err:    "field foo not found",
		},
		{
			name:   "rate limit",
			config: "storage:\n  blobs: inmemory\nhttp:\n  ratelimit:\n    enabled: true\n",
			err:    "rate limiting requires positive global and per-ip rps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.config))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	config := &Configuration{}
	config.HTTP.Addr = ":5000"

	environ := []string{
		"REGISTRY_HTTP_ADDR=:6000",
		"REGISTRY_HTTP_RATELIMIT_ENABLED=true",
		"REGISTRY_HTTP_RATELIMIT_GLOBAL_RPS=12.5",
		"REGISTRY_HTTP_RATELIMIT_TRUSTEDPROXIES=10.0.0.0/8,127.0.0.1",
		"REGISTRY_STORAGE_SYNC_POLICY=global",
		"REGISTRY_STORAGE_MAINTENANCE_UPLOADPURGING_AGE=2h",
		"REGISTRY_DATABASE_PORT=5433",
		"REGISTRY_LOG_ACCESSLOG_DISABLED=1",
		"REGISTRY_AUTH=ignored",
		"OTHER_HTTP_ADDR=:7000",
	}
	require.NoError(t, overrideFromEnv(reflect.ValueOf(config).Elem(), envPrefix, environ))

	require.Equal(t, ":6000", config.HTTP.Addr)
	require.True(t, config.HTTP.RateLimit.Enabled)
	require.Equal(t, 12.5, config.HTTP.RateLimit.Global.RPS)
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, config.HTTP.RateLimit.TrustedProxies)
	require.Equal(t, "global", config.Storage.Sync.Policy)
	require.Equal(t, 2*time.Hour, config.Storage.Maintenance.UploadPurging.Age)
	require.Equal(t, 5433, config.Database.Port)
	require.True(t, config.Log.AccessLog.Disabled)
}

func TestOverrideFromEnv_Invalid(t *testing.T) {
	config := &Configuration{}

	err := overrideFromEnv(reflect.ValueOf(config).Elem(), envPrefix, []string{"REGISTRY_DATABASE_PORT=abc"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "REGISTRY_DATABASE_PORT")
}

func TestDriver(t *testing.T) {
	var d Driver
	require.Empty(t, d.Type())
	require.Nil(t, d.Parameters())

	d = Driver{"filesystem": Parameters{"rootdirectory": "/var/lib/registry"}}
	require.Equal(t, "filesystem", d.Type())
	require.Equal(t, "/var/lib/registry", d.Parameters()["rootdirectory"])
}

func TestDatabase_Parameters(t *testing.T) {
	d := Database{Host: "db", Port: 5432, DBName: "registry", ConnectTimeout: 5 * time.Second}
	d.Pool.MaxOpen = 10

	p := d.Parameters()
	require.Equal(t, "db", p["host"])
	require.Equal(t, 5432, p["port"])
	require.Equal(t, "registry", p["dbname"])
	require.Equal(t, 5*time.Second, p["connecttimeout"])
	require.Equal(t, 10, p["pool"].(map[string]interface{})["maxopen"])
}
