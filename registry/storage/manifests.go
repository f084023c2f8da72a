package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"path"
	"strings"

	"github.com/bkrepo/registry/log"
	"github.com/bkrepo/registry/manifest"
	"github.com/bkrepo/registry/manifest/manifestlist"
	mlcompat "github.com/bkrepo/registry/manifest/manifestlist/compat"
	_ "github.com/bkrepo/registry/manifest/schema1"
	_ "github.com/bkrepo/registry/manifest/schema2"
	"github.com/bkrepo/registry/reference"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/validation"
	"github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Metadata keys attached to manifest nodes.
const (
	MetadataManifestDigest    = "docker.manifest.digest"
	MetadataManifestTag       = "docker.manifest"
	MetadataRepoName          = "docker.repoName"
	MetadataManifestType      = "docker.manifest.type"
	MetadataManifestMediaType = "docker.manifest.mediaType"
	MetadataLabelPrefix       = "label."
)

// maxConfigSize bounds the image configurations read for labels and the
// manifests read while walking manifest lists.
const maxConfigSize = 4 << 20

// ManifestDescriptor describes a stored manifest.
type ManifestDescriptor struct {
	Digest    digest.Digest
	MediaType string
	Type      manifest.Type
	Size      int64
	Path      string

	sha256 string
}

// AcceptedTypes returns the manifest types admitted by the values of the
// Accept headers of a request. Parameters such as q values are ignored.
func AcceptedTypes(accept []string) map[manifest.Type]bool {
	accepted := make(map[manifest.Type]bool)
	for _, header := range accept {
		for _, raw := range strings.Split(header, ",") {
			mediaType, _, err := mime.ParseMediaType(raw)
			if err != nil {
				continue
			}
			if t, ok := manifest.FromMediaType(mediaType); ok {
				accepted[t] = true
			}
		}
	}
	return accepted
}

// chooseManifestType selects the manifest served for a tag: a list when the
// client admits lists and the tag holds one, then the best plain type the
// client admits, defaulting to signed schema1.
func chooseManifestType(accepted map[manifest.Type]bool, listExists bool) manifest.Type {
	if accepted[manifest.Schema2List] && listExists {
		return manifest.Schema2List
	}
	switch {
	case accepted[manifest.Schema2]:
		return manifest.Schema2
	case accepted[manifest.Schema1Signed]:
		return manifest.Schema1Signed
	case accepted[manifest.Schema1]:
		return manifest.Schema1
	default:
		return manifest.Schema1Signed
	}
}

// StatManifest resolves the manifest referenced by art. Digest references
// are looked up among the manifests of the docker repository, tag references
// by path for the type chosen from accept.
func (r *Registry) StatManifest(ctx context.Context, art reference.Artifact, accept []string) (ManifestDescriptor, error) {
	if err := r.checkRepository(ctx, art, false); err != nil {
		return ManifestDescriptor{}, err
	}

	accepted := AcceptedTypes(accept)
	if dgst, ok := art.Reference.Digest(); ok {
		return r.statManifestByDigest(ctx, art, dgst, accepted)
	}
	return r.statManifestByTag(ctx, art, accepted)
}

// GetManifest resolves the manifest referenced by art and opens its content.
// Callers must close the reader.
func (r *Registry) GetManifest(ctx context.Context, art reference.Artifact, accept []string) (ManifestDescriptor, io.ReadCloser, error) {
	desc, err := r.StatManifest(ctx, art, accept)
	if err != nil {
		return ManifestDescriptor{}, nil, err
	}

	rc, err := r.blobs.Reader(ctx, desc.sha256, 0)
	if err != nil {
		return ManifestDescriptor{}, nil, fmt.Errorf("opening manifest %s: %w", desc.Path, err)
	}

	logger(ctx, art).WithFields(log.Fields{
		"reference":  art.Reference.String(),
		"digest":     desc.Digest,
		"media_type": desc.MediaType,
		"size_bytes": desc.Size,
	}).Info("manifest downloaded")

	return desc, rc, nil
}

func (r *Registry) statManifestByDigest(ctx context.Context, art reference.Artifact, dgst digest.Digest, accepted map[manifest.Type]bool) (ManifestDescriptor, error) {
	n, err := r.findManifestByDigest(ctx, art, dgst, manifest.Filename)
	if errors.As(err, &ErrManifestUnknown{}) && accepted[manifest.Schema2List] {
		n, err = r.findManifestByDigest(ctx, art, dgst, manifest.ListFilename)
	}
	if err != nil {
		return ManifestDescriptor{}, err
	}
	return r.describeManifest(ctx, n)
}

func (r *Registry) statManifestByTag(ctx context.Context, art reference.Artifact, accepted map[manifest.Type]bool) (ManifestDescriptor, error) {
	unknown := ErrManifestUnknown{Name: art.Name(), Reference: art.Reference.String()}

	tag, err := tagDir(art)
	if err != nil {
		return ManifestDescriptor{}, unknown
	}

	listExists := false
	if accepted[manifest.Schema2List] {
		p, err := pathFor(manifestPathSpec{dockerRepo: art.DockerRepo, tag: tag, mtype: manifest.Schema2List})
		if err != nil {
			return ManifestDescriptor{}, err
		}
		if listExists, err = r.nodes.Exists(ctx, r.key(art, p)); err != nil {
			return ManifestDescriptor{}, fmt.Errorf("checking manifest list: %w", err)
		}
	}

	t := chooseManifestType(accepted, listExists)
	p, err := pathFor(manifestPathSpec{dockerRepo: art.DockerRepo, tag: tag, mtype: t})
	if err != nil {
		return ManifestDescriptor{}, err
	}

	n, err := r.nodes.Detail(ctx, r.key(art, p))
	if err != nil {
		if errors.Is(err, storagedriver.ErrNodeNotFound) {
			return ManifestDescriptor{}, unknown
		}
		return ManifestDescriptor{}, fmt.Errorf("resolving manifest %s: %w", p, err)
	}
	if n.Folder {
		return ManifestDescriptor{}, unknown
	}

	return r.describeManifest(ctx, n)
}

// findManifestByDigest returns the manifest node named filename of the
// docker repository of art whose content digest is dgst.
func (r *Registry) findManifestByDigest(ctx context.Context, art reference.Artifact, dgst digest.Digest, filename string) (*storagedriver.Node, error) {
	root, err := pathFor(repositoryPathSpec{dockerRepo: art.DockerRepo})
	if err != nil {
		return nil, err
	}

	nn, err := r.nodes.Query(ctx, storagedriver.Query{
		ProjectID:  art.ProjectID,
		RepoName:   art.RepoName,
		PathPrefix: root,
		Names:      []string{filename},
	})
	if err != nil {
		return nil, fmt.Errorf("searching manifest %s: %w", dgst, err)
	}

	for i := range nn {
		n := &nn[i]
		if repo, _, ok := splitManifestPath(n.FullPath); !ok || repo != art.DockerRepo {
			continue
		}
		if n.Metadata[MetadataManifestDigest] == dgst.String() ||
			(dgst.Algorithm() == digest.SHA256 && n.Sha256 == dgst.Encoded()) {
			return n, nil
		}
	}

	return nil, ErrManifestUnknown{Name: art.Name(), Reference: dgst.String()}
}

// describeManifest builds the descriptor of a manifest node from its
// metadata, sniffing the payload when the media type was never recorded.
func (r *Registry) describeManifest(ctx context.Context, n *storagedriver.Node) (ManifestDescriptor, error) {
	md := n.Metadata
	if md == nil {
		var err error
		if md, err = r.nodes.QueryMetadata(ctx, n.NodeKey); err != nil && !errors.Is(err, storagedriver.ErrNodeNotFound) {
			return ManifestDescriptor{}, fmt.Errorf("reading manifest metadata: %w", err)
		}
	}

	desc := ManifestDescriptor{
		Size:   n.Size,
		Path:   n.FullPath,
		sha256: n.Sha256,
	}

	if dgst, err := digest.Parse(md[MetadataManifestDigest]); err == nil {
		desc.Digest = dgst
	} else {
		desc.Digest = digest.NewDigestFromEncoded(digest.SHA256, n.Sha256)
	}

	if t, err := manifest.ParseType(md[MetadataManifestType]); err == nil {
		desc.Type = t
		desc.MediaType = md[MetadataManifestMediaType]
		if desc.MediaType == "" {
			desc.MediaType = t.MediaType()
		}
		return desc, nil
	}

	payload, err := r.readAll(ctx, n.Sha256)
	if err != nil {
		return ManifestDescriptor{}, err
	}
	t, mediaType, err := manifest.Detect("", payload)
	if err != nil {
		return ManifestDescriptor{}, ErrMalformedManifest{Reason: err}
	}
	desc.Type = t
	desc.MediaType = mediaType

	return desc, nil
}

// PutManifest stores payload under the reference of art. The digest of the
// payload is computed first and returned even when the upload fails later.
// Blobs referenced by the manifest are synced next to it before the manifest
// is written, so that a visible manifest never misses its blobs.
func (r *Registry) PutManifest(ctx context.Context, art reference.Artifact, mediaType string, payload []byte) (digest.Digest, error) {
	dgst := manifest.Digest(payload)

	if err := r.checkRepository(ctx, art, true); err != nil {
		return dgst, err
	}

	l := logger(ctx, art).WithFields(log.Fields{
		"reference":  art.Reference.String(),
		"digest":     dgst,
		"media_type": mediaType,
	})

	if ref, ok := art.Reference.Digest(); ok {
		if actual := ref.Algorithm().FromBytes(payload); actual != ref {
			l.WithField("provided_digest", ref).Error("payload digest does not match provided digest")
			return dgst, ErrInvalidDigest{
				Digest: ref.String(),
				Reason: storagedriver.ErrDigestMismatch{Expected: ref.String(), Actual: actual.String()},
			}
		}
	}

	tag, err := tagDir(art)
	if err != nil {
		return dgst, err
	}

	t, mt, err := manifest.Detect(mediaType, payload)
	if err != nil {
		return dgst, ErrMalformedManifest{Reason: err}
	}
	md, err := manifest.Deserialize(payload, t)
	if err != nil {
		return dgst, ErrMalformedManifest{Reason: err}
	}

	if t == manifest.Schema2List {
		err = r.prepareManifestList(ctx, art, tag, payload)
	} else {
		err = r.syncBlobs(ctx, art, tag, md.BlobsInfo, r.syncPolicy)
		if err == nil && md.Config != nil {
			md.TagInfo.Labels.Merge(r.configLabels(ctx, art, tag, *md.Config))
		}
	}
	if err != nil {
		return dgst, err
	}

	if err := r.persistManifest(ctx, art, tag, t, mt, dgst, payload, md.TagInfo.Labels); err != nil {
		return dgst, err
	}

	l.WithField("type", t).Info("manifest uploaded")
	return dgst, nil
}

// prepareManifestList checks that every manifest of a list exists somewhere
// the caller can read, then syncs the config blobs of those manifests next
// to the list. Buildx cache indexes reference blobs directly; they are
// checked and synced as blobs.
func (r *Registry) prepareManifestList(ctx context.Context, art reference.Artifact, tag string, payload []byte) error {
	ml, err := manifestlist.Unmarshal(payload)
	if err != nil {
		return ErrMalformedManifest{Reason: err}
	}

	checker := &referenceChecker{locator: r.locator}
	v := validation.NewManifestListValidator(checker, checker, false, 0, r.validationConcurrency)
	if err := v.Validate(ctx, ml); err != nil {
		var verr validation.ErrManifestVerification
		if errors.As(err, &verr) {
			return ErrManifestListReferenceUnknown{Digests: verr.UnknownDigests(), Err: err}
		}
		return err
	}

	var blobs []manifest.BlobInfo
	if mlcompat.LikelyBuildxCache(ml) {
		cfg, layers, err := mlcompat.BuildkitIndexBlobs(ml)
		if err != nil {
			return ErrMalformedManifest{Reason: err}
		}
		for _, d := range append([]v1.Descriptor{cfg}, layers...) {
			blobs = append(blobs, manifest.BlobInfo{Digest: d.Digest.String(), Size: d.Size, MediaType: d.MediaType})
		}
	} else {
		blobs, err = manifest.CollectBlobs(ctx, payload, manifest.Schema2List, &manifestFetcher{registry: r, artifact: art})
		if err != nil {
			return err
		}
	}

	// Validation already searched every readable repository.
	return r.syncBlobs(ctx, art, tag, blobs, SyncGlobal)
}

// persistManifest writes the manifest bytes, then the node together with the
// manifest metadata so that a readable manifest always carries its digest and
// media type. A manifest of the other kind left at the same tag is removed:
// the last upload wins.
func (r *Registry) persistManifest(ctx context.Context, art reference.Artifact, tag string, t manifest.Type, mediaType string, dgst digest.Digest, payload []byte, labels manifest.Labels) error {
	p, err := pathFor(manifestPathSpec{dockerRepo: art.DockerRepo, tag: tag, mtype: t})
	if err != nil {
		return err
	}

	fi, err := r.blobs.Store(ctx, bytes.NewReader(payload), dgst)
	if err != nil {
		return ErrFileSaveFailed{Path: p, Err: err}
	}

	md := map[string]string{
		string(digest.SHA256):     fi.Sha256,
		MetadataManifestDigest:    dgst.String(),
		MetadataManifestTag:       art.Reference.String(),
		MetadataRepoName:          art.DockerRepo,
		MetadataManifestType:      t.String(),
		MetadataManifestMediaType: mediaType,
	}
	for _, k := range labels.Keys() {
		md[MetadataLabelPrefix+k] = strings.Join(labels[k], ",")
	}

	if _, err := r.nodes.Create(ctx, storagedriver.CreateNodeRequest{
		NodeKey:   r.key(art, p),
		Size:      fi.Size,
		Sha256:    fi.Sha256,
		Metadata:  md,
		Overwrite: true,
	}); err != nil {
		return ErrFileSaveFailed{Path: p, Err: err}
	}

	other := manifest.Schema2List
	if t == manifest.Schema2List {
		other = manifest.Schema2
	}
	if op, err := pathFor(manifestPathSpec{dockerRepo: art.DockerRepo, tag: tag, mtype: other}); err == nil {
		if err := r.nodes.Delete(ctx, r.key(art, op)); err != nil && !errors.Is(err, storagedriver.ErrNodeNotFound) {
			logger(ctx, art).WithError(err).WithField("path", op).Warn("failed to remove replaced manifest")
		}
	}

	return nil
}

// configLabels reads the labels of the image configuration synced in the
// tag directory. Failures are logged: labels are informational.
func (r *Registry) configLabels(ctx context.Context, art reference.Artifact, tag string, config manifest.BlobInfo) manifest.Labels {
	l := logger(ctx, art).WithField("digest", config.Digest)

	dgst, err := digest.Parse(config.Digest)
	if err != nil {
		return nil
	}
	p, err := pathFor(layerPathSpec{dockerRepo: art.DockerRepo, tag: tag, digest: dgst})
	if err != nil {
		return nil
	}
	n, err := r.nodes.Detail(ctx, r.key(art, p))
	if err != nil {
		l.WithError(err).Warn("failed to resolve image configuration")
		return nil
	}

	payload, err := r.readAll(ctx, n.Sha256)
	if err != nil {
		l.WithError(err).Warn("failed to read image configuration")
		return nil
	}
	labels, err := manifest.ConfigLabels(payload)
	if err != nil {
		l.WithError(err).Warn("failed to parse image configuration")
		return nil
	}
	return labels
}

// DeleteManifest removes the tag referenced by art with every blob synced
// for it. Deleting by digest is not supported and always reports an unknown
// manifest.
func (r *Registry) DeleteManifest(ctx context.Context, art reference.Artifact) error {
	if err := r.checkRepository(ctx, art, true); err != nil {
		return err
	}

	unknown := ErrManifestUnknown{Name: art.Name(), Reference: art.Reference.String()}
	l := logger(ctx, art).WithField("reference", art.Reference.String())

	if _, ok := art.Reference.Digest(); ok {
		l.Warn("manifest deletion by digest is not supported")
		return unknown
	}

	tag, err := tagDir(art)
	if err != nil {
		return unknown
	}

	found := false
	for _, t := range []manifest.Type{manifest.Schema2, manifest.Schema2List} {
		p, err := pathFor(manifestPathSpec{dockerRepo: art.DockerRepo, tag: tag, mtype: t})
		if err != nil {
			return err
		}
		ok, err := r.nodes.Exists(ctx, r.key(art, p))
		if err != nil {
			return fmt.Errorf("checking manifest %s: %w", p, err)
		}
		found = found || ok
	}
	if !found {
		return unknown
	}

	dir, err := pathFor(tagPathSpec{dockerRepo: art.DockerRepo, tag: tag})
	if err != nil {
		return err
	}
	if err := r.nodes.Delete(ctx, r.key(art, dir)); err != nil {
		if errors.Is(err, storagedriver.ErrNodeNotFound) {
			return unknown
		}
		return fmt.Errorf("deleting tag %s: %w", dir, err)
	}

	l.Info("manifest deleted")
	return nil
}

// readAll reads a bounded blob into memory.
func (r *Registry) readAll(ctx context.Context, sha256 string) ([]byte, error) {
	rc, err := r.blobs.Reader(ctx, sha256, 0)
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", sha256, err)
	}
	defer rc.Close()

	p, err := ioutil.ReadAll(io.LimitReader(rc, maxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", sha256, err)
	}
	if len(p) > maxConfigSize {
		return nil, fmt.Errorf("blob %s exceeds %d bytes", sha256, maxConfigSize)
	}
	return p, nil
}

// manifestFetcher loads the manifests referenced by a list, preferring the
// docker repository of the list and falling back to a global search.
type manifestFetcher struct {
	registry *Registry
	artifact reference.Artifact
}

func (f *manifestFetcher) FetchManifest(ctx context.Context, dgst digest.Digest) ([]byte, string, error) {
	r := f.registry

	for _, filename := range []string{manifest.Filename, manifest.ListFilename} {
		n, err := r.findManifestByDigest(ctx, f.artifact, dgst, filename)
		if err == nil {
			payload, err := r.readAll(ctx, n.Sha256)
			return payload, n.Metadata[MetadataManifestMediaType], err
		}
		if !errors.As(err, &ErrManifestUnknown{}) {
			return nil, "", err
		}
	}

	loc, err := r.locator.Locate(ctx, dgst)
	if err != nil {
		return nil, "", err
	}
	payload, err := r.readAll(ctx, loc.Sha256)
	if err != nil {
		return nil, "", err
	}

	var mediaType string
	if path.Base(loc.FullPath) == manifest.Filename || path.Base(loc.FullPath) == manifest.ListFilename {
		if md, err := r.nodes.QueryMetadata(ctx, loc.NodeKey); err == nil {
			mediaType = md[MetadataManifestMediaType]
		}
	}
	return payload, mediaType, nil
}

// referenceChecker answers manifest list validation with global searches.
type referenceChecker struct {
	locator *blobLocator
}

func (c *referenceChecker) exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	_, err := c.locator.Locate(ctx, dgst)
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &ErrBlobUnknown{}):
		return false, nil
	default:
		return false, err
	}
}

func (c *referenceChecker) ManifestExists(ctx context.Context, dgst digest.Digest) (bool, error) {
	return c.exists(ctx, dgst)
}

func (c *referenceChecker) BlobExists(ctx context.Context, dgst digest.Digest) (bool, error) {
	return c.exists(ctx, dgst)
}
