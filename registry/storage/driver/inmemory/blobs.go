package inmemory

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/base"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

type blobDriverFactory struct{}

func (f *blobDriverFactory) Create(parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	return NewBlobs(), nil
}

type session struct {
	owner     string
	buf       bytes.Buffer
	updatedAt time.Time
}

type blobs struct {
	mu       sync.RWMutex
	clock    clock.Clock
	content  map[string][]byte
	sessions map[string]*session
}

// NewBlobs returns an empty in-memory blob store. The returned store also
// implements storagedriver.UploadPurger.
func NewBlobs() storagedriver.BlobStore {
	return NewBlobsWithClock(clock.New())
}

// NewBlobsWithClock returns an empty in-memory blob store using c to age
// append sessions.
func NewBlobsWithClock(c clock.Clock) storagedriver.BlobStore {
	return base.NewBlobBase(&blobs{
		clock:    c,
		content:  make(map[string][]byte),
		sessions: make(map[string]*session),
	})
}

func (d *blobs) Name() string {
	return driverName
}

func (d *blobs) Reader(ctx context.Context, sha256 string, offset int64) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.content[sha256]
	if !ok {
		return nil, storagedriver.ErrBlobNotFound
	}
	if offset > int64(len(p)) {
		offset = int64(len(p))
	}

	return ioutil.NopCloser(bytes.NewReader(p[offset:])), nil
}

// put must be called with d.mu held.
func (d *blobs) put(p []byte, expected digest.Digest) (storagedriver.FileInfo, error) {
	dg := storagedriver.NewDigester(expected)
	if _, err := dg.Write(p); err != nil {
		return storagedriver.FileInfo{}, err
	}
	info, err := dg.Result()
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	if _, ok := d.content[info.Sha256]; !ok {
		d.content[info.Sha256] = p
	}
	return info, nil
}

func (d *blobs) Store(ctx context.Context, r io.Reader, expected digest.Digest) (storagedriver.FileInfo, error) {
	p, err := ioutil.ReadAll(r)
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.put(p, expected)
}

func (d *blobs) Exists(ctx context.Context, sha256 string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.content[sha256]
	return ok, nil
}

func (d *blobs) CreateAppendID(ctx context.Context, owner string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.New().String()
	d.sessions[id] = &session{owner: owner, updatedAt: d.clock.Now()}

	return id, nil
}

func (d *blobs) AppendOwner(ctx context.Context, id string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return "", storagedriver.ErrAppendIDNotFound
	}
	return s.owner, nil
}

func (d *blobs) Append(ctx context.Context, id string, r io.Reader) (int64, error) {
	p, err := ioutil.ReadAll(r)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		return 0, storagedriver.ErrAppendIDNotFound
	}
	s.buf.Write(p)
	s.updatedAt = d.clock.Now()

	return int64(s.buf.Len()), nil
}

func (d *blobs) AppendSize(ctx context.Context, id string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return 0, storagedriver.ErrAppendIDNotFound
	}
	return int64(s.buf.Len()), nil
}

func (d *blobs) FinishAppend(ctx context.Context, id string, expected digest.Digest) (storagedriver.FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		return storagedriver.FileInfo{}, storagedriver.ErrAppendIDNotFound
	}
	delete(d.sessions, id)

	return d.put(s.buf.Bytes(), expected)
}

func (d *blobs) CancelAppend(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return storagedriver.ErrAppendIDNotFound
	}
	delete(d.sessions, id)

	return nil
}

func (d *blobs) PurgeUploads(ctx context.Context, olderThan time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var purged int
	for id, s := range d.sessions {
		if s.updatedAt.Before(olderThan) {
			delete(d.sessions, id)
			purged++
		}
	}
	return purged, nil
}
