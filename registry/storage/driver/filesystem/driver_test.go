package filesystem

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/internal/testutil"
	"github.com/bkrepo/registry/registry/storage/driver/testsuites"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
	"gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { check.TestingT(t) }

func init() {
	root, err := os.MkdirTemp("", "driver-")
	if err != nil {
		panic(err)
	}

	testsuites.RegisterBlobSuite(func() (storagedriver.BlobStore, error) {
		dir, err := os.MkdirTemp(root, "suite-")
		if err != nil {
			return nil, err
		}
		return FromParameters(map[string]interface{}{"rootdirectory": dir})
	}, testsuites.NeverSkip)
}

func TestFromParametersImpl(t *testing.T) {
	tests := []struct {
		params   map[string]interface{}
		expected DriverParameters
		wantErr  bool
	}{
		{
			params:   nil,
			expected: DriverParameters{RootDirectory: defaultRootDirectory},
		},
		{
			params:   map[string]interface{}{"rootdirectory": "/tmp/registry"},
			expected: DriverParameters{RootDirectory: "/tmp/registry"},
		},
		{
			params:   map[string]interface{}{"rootdirectory": "/tmp/registry", "fsynconcommit": "true"},
			expected: DriverParameters{RootDirectory: "/tmp/registry", FsyncOnCommit: true},
		},
		{
			params:  map[string]interface{}{"rootdirectory": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		params, err := fromParametersImpl(tt.params)
		if tt.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.expected, *params)
	}
}

func TestParseFsyncOnCommit(t *testing.T) {
	testutil.CheckParam(t, testutil.Param{
		Key:      "fsynconcommit",
		Field:    "FsyncOnCommit",
		Default:  false,
		Required: map[string]interface{}{"rootdirectory": testutil.TempRoot(t)},
		Parse: func(p map[string]interface{}) (interface{}, error) {
			return fromParametersImpl(p)
		},
	})
}

func TestLayout(t *testing.T) {
	root := testutil.TempRoot(t)
	d := New(DriverParameters{RootDirectory: root})
	ctx := context.Background()

	content := []byte("layer contents")
	info, err := d.Store(ctx, bytes.NewReader(content), "")
	require.NoError(t, err)

	sha := digest.FromBytes(content).Encoded()
	require.FileExists(t, filepath.Join(root, "blobs", sha[:2], sha, "data"))
	require.Equal(t, sha, info.Sha256)
}

func TestPurgeUploads(t *testing.T) {
	root := testutil.TempRoot(t)
	clk := clock.NewMock()
	clk.Set(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC))

	d := NewWithClock(DriverParameters{RootDirectory: root}, clk)
	ctx := context.Background()

	stale, err := d.CreateAppendID(ctx, "library/app")
	require.NoError(t, err)

	clk.Add(48 * time.Hour)
	fresh, err := d.CreateAppendID(ctx, "library/app")
	require.NoError(t, err)

	n, err := d.(storagedriver.UploadPurger).PurgeUploads(ctx, clk.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoDirExists(t, filepath.Join(root, "uploads", stale))
	require.DirExists(t, filepath.Join(root, "uploads", fresh))
}
