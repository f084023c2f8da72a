package metrics

import (
	"github.com/bkrepo/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blobDownloadBytesHist *prometheus.HistogramVec
	blobSyncTotal         *prometheus.CounterVec
)

const (
	subsystem   = "storage"
	driverLabel = "driver"
	sourceLabel = "source"

	blobDownloadBytesName = "blob_download_bytes"
	blobDownloadBytesDesc = "A histogram of blob download sizes for the storage backend."
	blobSyncTotalName     = "blob_sync_total"
	blobSyncTotalDesc     = "A counter of blobs synced next to uploaded manifests, by the place they were found."
)

// Places a synced blob can come from.
const (
	SyncSourceEmptyLayer = "empty_layer"
	SyncSourceStaged     = "staged"
	SyncSourcePresent    = "present"
	SyncSourceRepository = "repository"
	SyncSourceGlobal     = "global"
)

func init() {
	blobDownloadBytesHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      blobDownloadBytesName,
			Help:      blobDownloadBytesDesc,
			Buckets: []float64{
				512 * 1024,             // 512KiB
				1024 * 1024,            // 1MiB
				1024 * 1024 * 64,       // 64MiB
				1024 * 1024 * 256,      // 256MiB
				1024 * 1024 * 1024,     // 1GiB
				1024 * 1024 * 1024 * 5, // 5GiB
			},
		},
		[]string{driverLabel},
	)

	blobSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      blobSyncTotalName,
			Help:      blobSyncTotalDesc,
		},
		[]string{sourceLabel},
	)

	prometheus.MustRegister(blobDownloadBytesHist, blobSyncTotal)
}

// BlobDownload observes a blob served from the named blob driver.
func BlobDownload(driver string, size int64) {
	blobDownloadBytesHist.WithLabelValues(driver).Observe(float64(size))
}

// BlobSync counts a blob made available in a tag directory.
func BlobSync(source string) {
	blobSyncTotal.WithLabelValues(source).Inc()
}
