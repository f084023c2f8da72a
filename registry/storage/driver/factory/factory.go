// Package factory keeps the named node and blob driver constructors that
// configuration refers to.
package factory

import (
	"fmt"
	"sort"
	"sync"

	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
)

// NodeDriverFactory creates node drivers from configuration parameters.
type NodeDriverFactory interface {
	Create(parameters map[string]interface{}) (storagedriver.NodeDriver, error)
}

// BlobDriverFactory creates blob drivers from configuration parameters.
type BlobDriverFactory interface {
	Create(parameters map[string]interface{}) (storagedriver.BlobStore, error)
}

var (
	mu                  sync.RWMutex
	nodeDriverFactories = make(map[string]NodeDriverFactory)
	blobDriverFactories = make(map[string]BlobDriverFactory)
)

// RegisterNodeDriver makes a node driver available by name. It panics when
// called twice for the same name or with a nil factory.
func RegisterNodeDriver(name string, f NodeDriverFactory) {
	mu.Lock()
	defer mu.Unlock()

	if f == nil {
		panic("Must not provide nil NodeDriverFactory")
	}
	if _, registered := nodeDriverFactories[name]; registered {
		panic(fmt.Sprintf("NodeDriverFactory named %s already registered", name))
	}

	nodeDriverFactories[name] = f
}

// RegisterBlobDriver makes a blob driver available by name. It panics when
// called twice for the same name or with a nil factory.
func RegisterBlobDriver(name string, f BlobDriverFactory) {
	mu.Lock()
	defer mu.Unlock()

	if f == nil {
		panic("Must not provide nil BlobDriverFactory")
	}
	if _, registered := blobDriverFactories[name]; registered {
		panic(fmt.Sprintf("BlobDriverFactory named %s already registered", name))
	}

	blobDriverFactories[name] = f
}

// CreateNodeDriver creates the named node driver.
func CreateNodeDriver(name string, parameters map[string]interface{}) (storagedriver.NodeDriver, error) {
	mu.RLock()
	f, ok := nodeDriverFactories[name]
	mu.RUnlock()
	if !ok {
		return nil, InvalidDriverError{Kind: "node", Name: name}
	}

	return f.Create(parameters)
}

// CreateBlobDriver creates the named blob driver.
func CreateBlobDriver(name string, parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	mu.RLock()
	f, ok := blobDriverFactories[name]
	mu.RUnlock()
	if !ok {
		return nil, InvalidDriverError{Kind: "blob", Name: name}
	}

	return f.Create(parameters)
}

// Names lists the registered node and blob driver names.
func Names() (nodes, blobs []string) {
	mu.RLock()
	defer mu.RUnlock()

	for n := range nodeDriverFactories {
		nodes = append(nodes, n)
	}
	for n := range blobDriverFactories {
		blobs = append(blobs, n)
	}
	sort.Strings(nodes)
	sort.Strings(blobs)

	return nodes, blobs
}

// InvalidDriverError records an attempt to construct an unregistered driver.
type InvalidDriverError struct {
	Kind string
	Name string
}

func (err InvalidDriverError) Error() string {
	return fmt.Sprintf("%s driver not registered: %s", err.Kind, err.Name)
}
