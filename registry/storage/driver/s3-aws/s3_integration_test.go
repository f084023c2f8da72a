//go:build integration
// +build integration

package s3

import (
	"os"
	"testing"

	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/testsuites"
	"github.com/google/uuid"
	"gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { check.TestingT(t) }

func init() {
	skipCheck := func() string {
		if os.Getenv("S3_BUCKET") == "" || os.Getenv("AWS_REGION") == "" {
			return "Must set S3_BUCKET and AWS_REGION to run S3 tests"
		}
		return ""
	}

	testsuites.RegisterBlobSuite(func() (storagedriver.BlobStore, error) {
		params := map[string]interface{}{
			"region":        os.Getenv("AWS_REGION"),
			"bucket":        os.Getenv("S3_BUCKET"),
			"rootdirectory": "/registry-test/" + uuid.New().String(),
		}
		for param, env := range map[string]string{
			"accesskey":      "AWS_ACCESS_KEY",
			"secretkey":      "AWS_SECRET_KEY",
			"regionendpoint": "REGION_ENDPOINT",
			"forcepathstyle": "S3_FORCE_PATH_STYLE",
			"secure":         "S3_SECURE",
		} {
			if v := os.Getenv(env); v != "" {
				params[param] = v
			}
		}

		return FromParameters(params)
	}, skipCheck)
}
