package manifest

import (
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Fetcher loads a manifest payload addressed by digest.
type Fetcher interface {
	FetchManifest(ctx context.Context, dgst digest.Digest) (payload []byte, mediaType string, err error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, dgst digest.Digest) ([]byte, string, error)

// FetchManifest implements Fetcher.
func (f FetcherFunc) FetchManifest(ctx context.Context, dgst digest.Digest) ([]byte, string, error) {
	return f(ctx, dgst)
}

// CollectBlobs returns every blob payload of type t references. Plain
// manifests yield their own blobs. Lists are walked with a worklist: each
// referenced manifest is fetched and contributes its config blob, nested
// lists are expanded in turn and each digest is visited once.
func CollectBlobs(ctx context.Context, payload []byte, t Type, fetcher Fetcher) ([]BlobInfo, error) {
	root, err := Deserialize(payload, t)
	if err != nil {
		return nil, err
	}
	if t != Schema2List {
		return root.BlobsInfo, nil
	}

	var (
		blobs    []BlobInfo
		seenBlob = make(map[string]struct{})
		visited  = map[digest.Digest]struct{}{root.TagInfo.Digest: {}}
		queue    []digest.Digest
	)

	for _, ref := range root.References {
		queue = append(queue, ref.Digest)
	}

	for len(queue) > 0 {
		dgst := queue[0]
		queue = queue[1:]

		if _, ok := visited[dgst]; ok {
			continue
		}
		visited[dgst] = struct{}{}

		p, mediaType, err := fetcher.FetchManifest(ctx, dgst)
		if err != nil {
			return nil, fmt.Errorf("fetching manifest %s: %w", dgst, err)
		}
		mt, _, err := Detect(mediaType, p)
		if err != nil {
			return nil, err
		}
		m, err := Deserialize(p, mt)
		if err != nil {
			return nil, err
		}

		if mt == Schema2List {
			for _, ref := range m.References {
				queue = append(queue, ref.Digest)
			}
			continue
		}
		if m.Config == nil {
			continue
		}
		if _, ok := seenBlob[m.Config.Digest]; ok {
			continue
		}
		seenBlob[m.Config.Digest] = struct{}{}
		blobs = append(blobs, *m.Config)
	}

	return blobs, nil
}
