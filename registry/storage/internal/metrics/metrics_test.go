package metrics

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/bkrepo/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
	testutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBlobDownload(t *testing.T) {
	BlobDownload("inmemory", 512)
	BlobDownload("s3aws", 2*1024*1024)
	BlobDownload("s3aws", 2048)

	var expected bytes.Buffer
	expected.WriteString(`
# HELP registry_storage_blob_download_bytes A histogram of blob download sizes for the storage backend.
# TYPE registry_storage_blob_download_bytes histogram
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="524288"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="1.048576e+06"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="6.7108864e+07"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="2.68435456e+08"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="1.073741824e+09"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="5.36870912e+09"} 1
registry_storage_blob_download_bytes_bucket{driver="inmemory",le="+Inf"} 1
registry_storage_blob_download_bytes_sum{driver="inmemory"} 512
registry_storage_blob_download_bytes_count{driver="inmemory"} 1
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="524288"} 1
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="1.048576e+06"} 1
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="6.7108864e+07"} 2
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="2.68435456e+08"} 2
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="1.073741824e+09"} 2
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="5.36870912e+09"} 2
registry_storage_blob_download_bytes_bucket{driver="s3aws",le="+Inf"} 2
registry_storage_blob_download_bytes_sum{driver="s3aws"} 2.0992e+06
registry_storage_blob_download_bytes_count{driver="s3aws"} 2
`)
	fullName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, blobDownloadBytesName)

	err := testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, fullName)
	require.NoError(t, err)
}

func TestBlobSync(t *testing.T) {
	BlobSync(SyncSourceStaged)
	BlobSync(SyncSourceStaged)
	BlobSync(SyncSourceGlobal)

	var expected bytes.Buffer
	expected.WriteString(`
# HELP registry_storage_blob_sync_total A counter of blobs synced next to uploaded manifests, by the place they were found.
# TYPE registry_storage_blob_sync_total counter
registry_storage_blob_sync_total{source="global"} 1
registry_storage_blob_sync_total{source="staged"} 2
`)
	fullName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, blobSyncTotalName)

	err := testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, fullName)
	require.NoError(t, err)
}
