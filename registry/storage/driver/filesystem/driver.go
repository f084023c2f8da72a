// Package filesystem provides a blob driver storing content under a local
// root directory. Blobs live at blobs/<aa>/<sha256>/data and append sessions
// at uploads/<id>/data with a JSON sidecar recording their last write.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	storagedriver "github.com/bkrepo/registry/registry/storage/driver"
	"github.com/bkrepo/registry/registry/storage/driver/base"
	"github.com/bkrepo/registry/registry/storage/driver/factory"
	"github.com/bkrepo/registry/registry/storage/driver/parse"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/opencontainers/go-digest"
)

const (
	driverName           = "filesystem"
	defaultRootDirectory = "/var/lib/registry"
	sessionFile          = "session.json"
	dataFile             = "data"
)

// DriverParameters represents all configuration options available for the
// filesystem driver
type DriverParameters struct {
	RootDirectory string `mapstructure:"rootdirectory"`
	// FsyncOnCommit syncs blob files before they become visible.
	FsyncOnCommit bool `mapstructure:"-"`
}

func init() {
	factory.RegisterBlobDriver(driverName, &filesystemDriverFactory{})
}

type filesystemDriverFactory struct{}

func (factory *filesystemDriverFactory) Create(parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	return FromParameters(parameters)
}

type driver struct {
	rootDirectory string
	fsync         bool
	clock         clock.Clock
}

// FromParameters constructs a new Driver with a given parameters map
// Optional Parameters:
// - rootdirectory
// - fsynconcommit
func FromParameters(parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil || params == nil {
		return nil, err
	}
	return New(*params), nil
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	params := &DriverParameters{RootDirectory: defaultRootDirectory}

	if parameters != nil {
		config := &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           params,
		}
		decoder, err := mapstructure.NewDecoder(config)
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(parameters); err != nil {
			return nil, fmt.Errorf("decoding filesystem parameters: %w", err)
		}
		if params.RootDirectory == "" {
			return nil, errors.New("rootdirectory cannot be empty")
		}

		fsync, err := parse.Bool(parameters, "fsynconcommit", false)
		if err != nil {
			return nil, err
		}
		params.FsyncOnCommit = fsync
	}

	return params, nil
}

// New constructs a new Driver with a given rootDirectory
func New(params DriverParameters) storagedriver.BlobStore {
	return NewWithClock(params, clock.New())
}

// NewWithClock constructs a driver aging append sessions with c.
func NewWithClock(params DriverParameters, c clock.Clock) storagedriver.BlobStore {
	return base.NewBlobBase(&driver{
		rootDirectory: params.RootDirectory,
		fsync:         params.FsyncOnCommit,
		clock:         c,
	})
}

func (d *driver) Name() string {
	return driverName
}

func (d *driver) blobDir(sha256 string) string {
	prefix := sha256
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(d.rootDirectory, "blobs", prefix, sha256)
}

func (d *driver) uploadDir(id string) string {
	return filepath.Join(d.rootDirectory, "uploads", id)
}

func (d *driver) Reader(ctx context.Context, sha256 string, offset int64) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(d.blobDir(sha256), dataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.ErrBlobNotFound
		}
		return nil, err
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return file, nil
}

func (d *driver) Exists(ctx context.Context, sha256 string) (bool, error) {
	_, err := os.Stat(filepath.Join(d.blobDir(sha256), dataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// commit moves a fully written temporary file into the blob tree.
func (d *driver) commit(tmp string, info storagedriver.FileInfo) error {
	dir := d.blobDir(info.Sha256)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return err
	}

	target := filepath.Join(dir, dataFile)
	if _, err := os.Stat(target); err == nil {
		// content addressed: an existing blob holds the same bytes
		return os.Remove(tmp)
	}

	return os.Rename(tmp, target)
}

func (d *driver) writeTemp(r io.Reader, dg *storagedriver.Digester) (string, error) {
	tmpDir := filepath.Join(d.rootDirectory, "tmp")
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		return "", err
	}

	fp, err := ioutil.TempFile(tmpDir, "blob-")
	if err != nil {
		return "", err
	}
	defer fp.Close()

	if _, err := io.Copy(io.MultiWriter(fp, dg), r); err != nil {
		os.Remove(fp.Name())
		return "", err
	}
	if d.fsync {
		if err := fp.Sync(); err != nil {
			os.Remove(fp.Name())
			return "", err
		}
	}

	return fp.Name(), nil
}

func (d *driver) Store(ctx context.Context, r io.Reader, expected digest.Digest) (storagedriver.FileInfo, error) {
	dg := storagedriver.NewDigester(expected)

	tmp, err := d.writeTemp(r, dg)
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	info, err := dg.Result()
	if err != nil {
		os.Remove(tmp)
		return storagedriver.FileInfo{}, err
	}

	if err := d.commit(tmp, info); err != nil {
		os.Remove(tmp)
		return storagedriver.FileInfo{}, err
	}

	return info, nil
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *driver) readSession(id string) (*sessionInfo, error) {
	p, err := ioutil.ReadFile(filepath.Join(d.uploadDir(id), sessionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagedriver.ErrAppendIDNotFound
		}
		return nil, err
	}

	var s sessionInfo
	if err := json.Unmarshal(p, &s); err != nil {
		return nil, fmt.Errorf("decoding upload session %s: %w", id, err)
	}
	return &s, nil
}

func (d *driver) writeSession(s *sessionInfo) error {
	p, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(d.uploadDir(s.ID), sessionFile), p, 0666)
}

func (d *driver) CreateAppendID(ctx context.Context, owner string) (string, error) {
	id := uuid.New().String()
	if err := os.MkdirAll(d.uploadDir(id), 0777); err != nil {
		return "", err
	}

	fp, err := os.Create(filepath.Join(d.uploadDir(id), dataFile))
	if err != nil {
		return "", err
	}
	fp.Close()

	now := d.clock.Now()
	if err := d.writeSession(&sessionInfo{ID: id, Owner: owner, StartedAt: now, UpdatedAt: now}); err != nil {
		return "", err
	}

	return id, nil
}

func (d *driver) AppendOwner(ctx context.Context, id string) (string, error) {
	s, err := d.readSession(id)
	if err != nil {
		return "", err
	}
	return s.Owner, nil
}

func (d *driver) Append(ctx context.Context, id string, r io.Reader) (int64, error) {
	s, err := d.readSession(id)
	if err != nil {
		return 0, err
	}

	fp, err := os.OpenFile(filepath.Join(d.uploadDir(id), dataFile), os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storagedriver.ErrAppendIDNotFound
		}
		return 0, err
	}
	defer fp.Close()

	if _, err := io.Copy(fp, r); err != nil {
		return 0, err
	}

	fi, err := fp.Stat()
	if err != nil {
		return 0, err
	}

	s.UpdatedAt = d.clock.Now()
	if err := d.writeSession(s); err != nil {
		return 0, err
	}

	return fi.Size(), nil
}

func (d *driver) AppendSize(ctx context.Context, id string) (int64, error) {
	if _, err := d.readSession(id); err != nil {
		return 0, err
	}

	fi, err := os.Stat(filepath.Join(d.uploadDir(id), dataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storagedriver.ErrAppendIDNotFound
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (d *driver) FinishAppend(ctx context.Context, id string, expected digest.Digest) (storagedriver.FileInfo, error) {
	if _, err := d.readSession(id); err != nil {
		return storagedriver.FileInfo{}, err
	}
	defer os.RemoveAll(d.uploadDir(id))

	data := filepath.Join(d.uploadDir(id), dataFile)
	fp, err := os.Open(data)
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	dg := storagedriver.NewDigester(expected)
	_, err = io.Copy(dg, fp)
	fp.Close()
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	info, err := dg.Result()
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	if err := d.commit(data, info); err != nil {
		return storagedriver.FileInfo{}, err
	}

	return info, nil
}

func (d *driver) CancelAppend(ctx context.Context, id string) error {
	if _, err := d.readSession(id); err != nil {
		return err
	}
	return os.RemoveAll(d.uploadDir(id))
}

func (d *driver) PurgeUploads(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := ioutil.ReadDir(filepath.Join(d.rootDirectory, "uploads"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var purged int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		s, err := d.readSession(e.Name())
		if err != nil {
			if errors.Is(err, storagedriver.ErrAppendIDNotFound) {
				// half created session, fall back to the directory mtime
				if !e.ModTime().Before(olderThan) {
					continue
				}
			} else {
				return purged, err
			}
		} else if !s.UpdatedAt.Before(olderThan) {
			continue
		}

		if err := os.RemoveAll(d.uploadDir(e.Name())); err != nil {
			return purged, err
		}
		purged++
	}

	return purged, nil
}
