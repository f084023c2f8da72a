package s3

import (
	"testing"

	"github.com/bkrepo/registry/registry/storage/driver/internal/testutil"
	"github.com/stretchr/testify/require"
)

func requiredParams() map[string]interface{} {
	return map[string]interface{}{
		"region": "us-east-1",
		"bucket": "registry",
	}
}

func TestFromParametersImpl(t *testing.T) {
	params, err := fromParametersImpl(map[string]interface{}{
		"region":         "eu-west-1",
		"bucket":         "registry",
		"accesskey":      "key",
		"secretkey":      "secret",
		"regionendpoint": "http://minio:9000",
		"forcepathstyle": "true",
		"secure":         false,
	})
	require.NoError(t, err)
	require.Equal(t, DriverParameters{
		AccessKey:      "key",
		SecretKey:      "secret",
		Bucket:         "registry",
		Region:         "eu-west-1",
		RegionEndpoint: "http://minio:9000",
		Secure:         false,
		ForcePathStyle: true,
	}, *params)
}

func TestFromParametersImpl_Required(t *testing.T) {
	_, err := fromParametersImpl(map[string]interface{}{"bucket": "registry"})
	require.EqualError(t, err, "no region parameter provided")

	_, err = fromParametersImpl(map[string]interface{}{"region": "us-east-1"})
	require.EqualError(t, err, "no bucket parameter provided")
}

func TestParameters(t *testing.T) {
	tests := []testutil.Param{
		{Key: "secure", Field: "Secure", Default: true},
		{Key: "forcepathstyle", Field: "ForcePathStyle", Default: false},
		{Key: "rootdirectory", Field: "RootDirectory", Default: ""},
	}

	for _, p := range tests {
		t.Run(p.Key, func(t *testing.T) {
			p.Required = requiredParams()
			p.Parse = func(params map[string]interface{}) (interface{}, error) {
				return fromParametersImpl(params)
			}
			testutil.CheckParam(t, p)
		})
	}
}

func TestKeys(t *testing.T) {
	d := &driver{Bucket: "registry", RootDirectory: "/docker/"}

	require.Equal(t, "docker/blobs/ab/abcdef/data", d.blobKey("abcdef"))
	require.Equal(t, "docker/uploads/id-1/part-000002", d.uploadKey("id-1", partName(2)))

	d.RootDirectory = ""
	require.Equal(t, "blobs/ab/abcdef/data", d.blobKey("abcdef"))
}
