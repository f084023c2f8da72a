package metrics

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/bkrepo/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
	testutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func mockTimeSince(d time.Duration) func() {
	bkp := timeSince
	timeSince = func(_ time.Time) time.Duration { return d }
	return func() { timeSince = bkp }
}

func TestRequest(t *testing.T) {
	restore := mockTimeSince(250 * time.Millisecond)
	defer restore()

	Request("manifest", "GET", 200, time.Now())
	Request("manifest", "GET", 200, time.Now())
	Request("manifest", "GET", 404, time.Now())
	Request("blob", "HEAD", 200, time.Now())

	var expected bytes.Buffer
	expected.WriteString(`
# HELP registry_http_requests_total A counter of API requests, by route, method and response code.
# TYPE registry_http_requests_total counter
registry_http_requests_total{code="200",method="GET",route="manifest"} 2
registry_http_requests_total{code="200",method="HEAD",route="blob"} 1
registry_http_requests_total{code="404",method="GET",route="manifest"} 1
`)
	totalName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, requestTotalName)

	err := testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, totalName)
	require.NoError(t, err)

	expected.Reset()
	expected.WriteString(`
# HELP registry_http_request_duration_seconds A histogram of latencies for API requests, by route.
# TYPE registry_http_request_duration_seconds histogram
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.005"} 0
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.01"} 0
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.05"} 0
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.1"} 0
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.25"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="0.5"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="1"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="5"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="15"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="60"} 3
registry_http_request_duration_seconds_bucket{method="GET",route="manifest",le="+Inf"} 3
registry_http_request_duration_seconds_sum{method="GET",route="manifest"} 0.75
registry_http_request_duration_seconds_count{method="GET",route="manifest"} 3
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.005"} 0
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.01"} 0
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.05"} 0
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.1"} 0
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.25"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="0.5"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="1"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="5"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="15"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="60"} 1
registry_http_request_duration_seconds_bucket{method="HEAD",route="blob",le="+Inf"} 1
registry_http_request_duration_seconds_sum{method="HEAD",route="blob"} 0.25
registry_http_request_duration_seconds_count{method="HEAD",route="blob"} 1
`)
	durationName := fmt.Sprintf("%s_%s_%s", metrics.NamespacePrefix, subsystem, requestDurationName)

	err = testutil.GatherAndCompare(prometheus.DefaultGatherer, &expected, durationName)
	require.NoError(t, err)
}
