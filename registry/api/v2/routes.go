package v2

import (
	"github.com/bkrepo/registry/reference"
	"github.com/gorilla/mux"
)

// The following are definitions of the name under which all V2 routes are
// registered. These symbols can be used to look up a route based on the name.
const (
	RouteNameBase            = "base"
	RouteNameManifest        = "manifest"
	RouteNameTags            = "tags"
	RouteNameBlob            = "blob"
	RouteNameBlobUpload      = "blob-upload"
	RouteNameBlobUploadChunk = "blob-upload-chunk"
	RouteNameCatalog         = "catalog"
)

// RouteDescriptor describes a route registered on the v2 router.
type RouteDescriptor struct {
	Name string
	Path string
}

var (
	nameVar      = "{name:" + reference.NameRegexp.String() + "}"
	referenceVar = "{reference:" + reference.ReferenceRegexp.String() + "}"
	digestVar    = "{digest:" + reference.DigestRegexp.String() + "}"
	uuidVar      = "{uuid:[a-zA-Z0-9-_.=]+}"
)

// APIDescriptors lists the v2 routes in registration order. Order matters:
// the catalog must be matched before a name could swallow "_catalog".
var APIDescriptors = []RouteDescriptor{
	{Name: RouteNameBase, Path: "/v2/"},
	{Name: RouteNameCatalog, Path: "/v2/_catalog"},
	{Name: RouteNameTags, Path: "/v2/" + nameVar + "/tags/list"},
	{Name: RouteNameManifest, Path: "/v2/" + nameVar + "/manifests/" + referenceVar},
	{Name: RouteNameBlobUpload, Path: "/v2/" + nameVar + "/blobs/uploads/"},
	{Name: RouteNameBlobUploadChunk, Path: "/v2/" + nameVar + "/blobs/uploads/" + uuidVar},
	{Name: RouteNameBlob, Path: "/v2/" + nameVar + "/blobs/" + digestVar},
}

// Router builds a gorilla router with named routes for the various API
// methods. This can be used directly by both server implementations and
// clients.
func Router() *mux.Router {
	return RouterWithPrefix("")
}

// RouterWithPrefix builds a gorilla router with a configured prefix
// on all routes.
func RouterWithPrefix(prefix string) *mux.Router {
	rootRouter := mux.NewRouter()
	router := rootRouter
	if prefix != "" {
		router = router.PathPrefix(prefix).Subrouter()
	}

	router.StrictSlash(true)

	for _, descriptor := range APIDescriptors {
		router.Path(descriptor.Path).Name(descriptor.Name)
	}

	return rootRouter
}
