package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bkrepo/registry/configuration"
	"github.com/bkrepo/registry/migrations"
	"github.com/bkrepo/registry/registry/api/errcode"
	_ "github.com/bkrepo/registry/registry/storage/driver/inmemory"
	"github.com/bkrepo/registry/version"
	"github.com/stretchr/testify/require"
)

const inmemoryConfig = `
log:
  accesslog:
    disabled: true
storage:
  nodes: inmemory
  blobs: inmemory
`

func parseConfig(t *testing.T, yml string) *configuration.Configuration {
	t.Helper()

	config, err := configuration.Parse(strings.NewReader(yml))
	require.NoError(t, err)
	return config
}

func TestNewRegistry(t *testing.T) {
	config := parseConfig(t, inmemoryConfig)

	r, err := NewRegistry(context.Background(), config)
	require.NoError(t, err)
	require.Nil(t, r.purger)

	rec := httptest.NewRecorder()
	r.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "registry/2.0", rec.Header().Get("Docker-Distribution-API-Version"))

	require.NoError(t, r.Shutdown(time.Second))
}

func TestNewRegistry_UploadPurging(t *testing.T) {
	config := parseConfig(t, inmemoryConfig)
	config.Storage.Maintenance.UploadPurging.Enabled = true

	r, err := NewRegistry(context.Background(), config)
	require.NoError(t, err)
	require.NotNil(t, r.purger)
}

func TestNewRegistry_UnknownDrivers(t *testing.T) {
	config := parseConfig(t, inmemoryConfig)
	config.Storage.Nodes = configuration.Driver{"unknown": configuration.Parameters{}}

	_, err := NewRegistry(context.Background(), config)
	require.Error(t, err)
	require.Contains(t, err.Error(), "creating node driver")

	config = parseConfig(t, inmemoryConfig)
	config.Storage.Blobs = configuration.Driver{"unknown": configuration.Parameters{}}

	_, err = NewRegistry(context.Background(), config)
	require.Error(t, err)
	require.Contains(t, err.Error(), "creating blob driver")
}

func TestNewRegistry_UnknownAccessController(t *testing.T) {
	config := parseConfig(t, inmemoryConfig)
	config.Auth = configuration.Driver{"unknown": configuration.Parameters{}}

	_, err := NewRegistry(context.Background(), config)
	require.Error(t, err)
	require.Contains(t, err.Error(), "configuring access controller")
}

func TestPanicHandler(t *testing.T) {
	h := panicHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Errors, 1)
	require.Equal(t, errcode.ErrorCodeUnknown.String(), body.Errors[0].Code)
	require.Equal(t, "boom", body.Errors[0].Detail)
}

func TestBuildHandler_RateLimit(t *testing.T) {
	config := parseConfig(t, inmemoryConfig)
	config.HTTP.RateLimit = configuration.RateLimit{
		Enabled: true,
		Global:  configuration.Limit{RPS: 0.001, Burst: 1},
		PerIP:   configuration.Limit{RPS: 1000, Burst: 1000},
	}

	h := buildHandler(context.Background(), config, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestResolveConfiguration(t *testing.T) {
	dir, err := ioutil.TempDir("", "registry")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(inmemoryConfig), 0600))

	config, err := resolveConfiguration([]string{path})
	require.NoError(t, err)
	require.Equal(t, "inmemory", config.Storage.Blobs.Type())

	_, err = resolveConfiguration(nil)
	require.EqualError(t, err, "configuration path unspecified")

	_, err = resolveConfiguration([]string{filepath.Join(dir, "missing.yml")})
	require.Error(t, err)
}

func TestWriteStatusTable(t *testing.T) {
	applied := time.Date(2021, 11, 1, 10, 0, 0, 0, time.UTC)
	statuses := map[string]*migrations.MigrationStatus{
		"20211101100100_b": {PostDeployment: true},
		"20211101100000_a": {AppliedAt: &applied},
		"20211101100200_c": {Unknown: true, AppliedAt: &applied},
	}

	var buf bytes.Buffer
	VersionCmd.SetOut(&buf)
	writeStatusTable(VersionCmd, statuses)

	out := buf.String()
	require.Contains(t, out, "20211101100000_a")
	require.Contains(t, out, "20211101100100_b (post deployment)")
	require.Contains(t, out, "20211101100200_c (unknown)")
	require.Contains(t, out, applied.String())
	require.Less(t, strings.Index(out, "_a"), strings.Index(out, "_b"))
	require.Less(t, strings.Index(out, "_b"), strings.Index(out, "_c"))
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	VersionCmd.SetOut(&buf)
	VersionCmd.Run(VersionCmd, nil)

	require.Contains(t, buf.String(), version.Version)
}
