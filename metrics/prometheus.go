package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "registry"
)

var (
	// StorageNamespace is the prometheus namespace of collaborator store calls
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)
)

func init() {
	metrics.Register(StorageNamespace)
}
