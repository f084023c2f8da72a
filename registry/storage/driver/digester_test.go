package driver

import (
	"io"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestDigester(t *testing.T) {
	const content = "hello blob"

	tests := []struct {
		name     string
		expected digest.Digest
		wantErr  bool
	}{
		{name: "no expectation"},
		{name: "sha256", expected: digest.SHA256.FromString(content)},
		{name: "sha512", expected: digest.SHA512.FromString(content)},
		{name: "mismatch", expected: digest.SHA256.FromString("other"), wantErr: true},
		{name: "sha384 mismatch", expected: digest.SHA384.FromString("other"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDigester(tt.expected)
			_, err := io.Copy(d, strings.NewReader(content))
			require.NoError(t, err)

			info, err := d.Result()
			require.Equal(t, digest.SHA256.FromString(content).Encoded(), info.Sha256)
			require.EqualValues(t, len(content), info.Size)

			if tt.wantErr {
				var mismatch ErrDigestMismatch
				require.ErrorAs(t, err, &mismatch)
				require.Equal(t, tt.expected.String(), mismatch.Expected)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestKey(t *testing.T) {
	k := Key("proj", "repo", "foo//bar/../baz/")
	require.Equal(t, "/foo/baz", k.FullPath)
	require.Equal(t, "proj/repo/foo/baz", k.String())
}

func TestError_Unwrap(t *testing.T) {
	err := Error{DriverName: "inmemory", Enclosed: ErrNodeNotFound}
	require.ErrorIs(t, err, ErrNodeNotFound)
	require.Equal(t, "inmemory: node not found", err.Error())
}
