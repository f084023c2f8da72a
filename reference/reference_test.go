package reference

import (
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func TestParseDigest_RoundTrip(t *testing.T) {
	valid := []string{
		"sha256:" + strings.Repeat("a", 64),
		"sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"sha384:" + strings.Repeat("0", 96),
		"sha512:" + strings.Repeat("f", 128),
	}

	for _, s := range valid {
		t.Run(s[:6], func(t *testing.T) {
			d, err := ParseDigest(s)
			require.NoError(t, err)
			require.Equal(t, s, d.String())
		})
	}
}

func TestParseDigest_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{name: "tag", input: "latest", err: digest.ErrDigestInvalidFormat},
		{name: "short hex", input: "sha256:abc", err: digest.ErrDigestInvalidLength},
		{name: "uppercase hex", input: "sha256:" + strings.Repeat("A", 64), err: digest.ErrDigestInvalidFormat},
		{name: "unknown algorithm", input: "md5:" + strings.Repeat("a", 32), err: digest.ErrDigestUnsupported},
		{name: "empty", input: "", err: digest.ErrDigestInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDigest(tt.input)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestFromContent(t *testing.T) {
	p := []byte("hello")

	require.Equal(t, digest.FromBytes(p), FromContent(p, ""))
	require.Equal(t, digest.SHA512.FromBytes(p), FromContent(p, digest.SHA512))
	require.Equal(t, FromContent(p, ""), FromContent(append([]byte{}, p...), ""))
}

func TestFilename(t *testing.T) {
	d := digest.FromString("foo")
	require.Equal(t, d.Encoded(), Filename(d))
	require.NotContains(t, Filename(d), ":")
}

func TestParse(t *testing.T) {
	dgst := digest.FromString("manifest")

	ref := Parse(dgst.String())
	got, ok := ref.Digest()
	require.True(t, ok)
	require.Equal(t, dgst, got)
	_, ok = ref.Tag()
	require.False(t, ok)

	ref = Parse("v1.0")
	tag, ok := ref.Tag()
	require.True(t, ok)
	require.Equal(t, "v1.0", tag)
	_, ok = ref.Digest()
	require.False(t, ok)

	// malformed digests resolve as tags
	ref = Parse("sha256:abc")
	tag, ok = ref.Tag()
	require.True(t, ok)
	require.Equal(t, "sha256:abc", tag)
}

func TestWithTag(t *testing.T) {
	_, err := WithTag("latest")
	require.NoError(t, err)

	_, err = WithTag(".hidden")
	require.ErrorIs(t, err, ErrTagInvalid)

	_, err = WithTag(strings.Repeat("a", 129))
	require.ErrorIs(t, err, ErrTagInvalid)
}

func TestParseStrict(t *testing.T) {
	ref, err := ParseStrict("v1.0")
	require.NoError(t, err)
	tag, ok := ref.Tag()
	require.True(t, ok)
	require.Equal(t, "v1.0", tag)

	dgst := "sha256:" + strings.Repeat("a", 64)
	ref, err = ParseStrict(dgst)
	require.NoError(t, err)
	d, ok := ref.Digest()
	require.True(t, ok)
	require.Equal(t, dgst, d.String())

	for _, s := range []string{
		"md5:" + strings.Repeat("a", 32),
		"sha256:" + strings.Repeat("a", 40),
	} {
		_, err := ParseStrict(s)
		require.ErrorIs(t, err, ErrDigestInvalid, s)
	}

	for _, s := range []string{".hidden", "-dash", strings.Repeat("a", 129), "a:b"} {
		_, err := ParseStrict(s)
		require.ErrorIs(t, err, ErrTagInvalid, s)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Artifact
		wantErr  bool
	}{
		{
			name:     "single component docker repo",
			input:    "proj/docker-local/nginx",
			expected: Artifact{ProjectID: "proj", RepoName: "docker-local", DockerRepo: "nginx"},
		},
		{
			name:     "nested docker repo",
			input:    "proj/docker-local/library/ubuntu",
			expected: Artifact{ProjectID: "proj", RepoName: "docker-local", DockerRepo: "library/ubuntu"},
		},
		{name: "missing docker repo", input: "proj/docker-local", wantErr: true},
		{name: "uppercase", input: "proj/Docker/nginx", wantErr: true},
		{name: "trailing slash", input: "proj/docker/nginx/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseName(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNameInvalid)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, a)
			require.Equal(t, tt.input, a.Name())
		})
	}
}

func TestArtifact_String(t *testing.T) {
	a, err := ParseName("proj/repo/nginx")
	require.NoError(t, err)
	require.Equal(t, "proj/repo/nginx", a.String())

	tag, err := WithTag("v1")
	require.NoError(t, err)
	require.Equal(t, "proj/repo/nginx:v1", a.WithReference(tag).String())

	dgst := digest.FromString("x")
	require.Equal(t, "proj/repo/nginx@"+dgst.String(), a.WithReference(WithDigest(dgst)).String())
}
