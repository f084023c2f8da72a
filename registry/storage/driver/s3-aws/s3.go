// Package s3 provides a blob driver storing content in an Amazon S3
// compatible bucket.
//
// S3 objects are immutable, so append sessions are kept as numbered part
// objects next to a JSON session document and concatenated on finish.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
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
	driverName = "s3aws"

	sessionObject = "session.json"
	listMax       = 1000
)

// DriverParameters is a struct that encapsulates all of the driver parameters
// after all values have been set
type DriverParameters struct {
	AccessKey      string `mapstructure:"accesskey"`
	SecretKey      string `mapstructure:"secretkey"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	RegionEndpoint string `mapstructure:"regionendpoint"`
	RootDirectory  string `mapstructure:"rootdirectory"`
	Secure         bool   `mapstructure:"-"`
	ForcePathStyle bool   `mapstructure:"-"`
}

func init() {
	factory.RegisterBlobDriver(driverName, &s3DriverFactory{})
}

// s3DriverFactory implements the factory.BlobDriverFactory interface
type s3DriverFactory struct{}

func (factory *s3DriverFactory) Create(parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	return FromParameters(parameters)
}

type driver struct {
	S3            s3iface.S3API
	Uploader      *s3manager.Uploader
	Bucket        string
	RootDirectory string
	clock         clock.Clock
}

// FromParameters constructs a new Driver with a given parameters map
// Required parameters:
// - region
// - bucket
func FromParameters(parameters map[string]interface{}) (storagedriver.BlobStore, error) {
	params, err := fromParametersImpl(parameters)
	if err != nil {
		return nil, err
	}
	return New(*params)
}

func fromParametersImpl(parameters map[string]interface{}) (*DriverParameters, error) {
	params := &DriverParameters{}

	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           params,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(parameters); err != nil {
		return nil, fmt.Errorf("decoding s3 parameters: %w", err)
	}

	if params.Region, err = parse.String(parameters, "region", ""); err != nil {
		return nil, err
	}
	if params.Region == "" {
		return nil, errors.New("no region parameter provided")
	}
	if params.Bucket, err = parse.String(parameters, "bucket", ""); err != nil {
		return nil, err
	}
	if params.Bucket == "" {
		return nil, errors.New("no bucket parameter provided")
	}
	if params.RootDirectory, err = parse.String(parameters, "rootdirectory", ""); err != nil {
		return nil, err
	}
	if params.Secure, err = parse.Bool(parameters, "secure", true); err != nil {
		return nil, err
	}
	if params.ForcePathStyle, err = parse.Bool(parameters, "forcepathstyle", false); err != nil {
		return nil, err
	}

	return params, nil
}

// New constructs a new Driver with the given AWS credentials, region and
// bucketName.
func New(params DriverParameters) (storagedriver.BlobStore, error) {
	awsConfig := aws.NewConfig().
		WithRegion(params.Region).
		WithDisableSSL(!params.Secure).
		WithS3ForcePathStyle(params.ForcePathStyle)

	if params.AccessKey != "" && params.SecretKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(params.AccessKey, params.SecretKey, ""))
	}
	if params.RegionEndpoint != "" {
		awsConfig.WithEndpoint(params.RegionEndpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create new session with aws config: %w", err)
	}

	s3obj := s3.New(sess)
	return newWithClient(s3obj, params, clock.New()), nil
}

func newWithClient(client s3iface.S3API, params DriverParameters, c clock.Clock) storagedriver.BlobStore {
	return base.NewBlobBase(&driver{
		S3:            client,
		Uploader:      s3manager.NewUploaderWithClient(client),
		Bucket:        params.Bucket,
		RootDirectory: params.RootDirectory,
		clock:         c,
	})
}

func (d *driver) Name() string {
	return driverName
}

func (d *driver) key(elem ...string) string {
	return strings.TrimLeft(path.Join(append([]string{"/", d.RootDirectory}, elem...)...), "/")
}

func (d *driver) blobKey(sha256 string) string {
	prefix := sha256
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return d.key("blobs", prefix, sha256, "data")
}

func (d *driver) uploadKey(id string, elem ...string) string {
	return d.key(append([]string{"uploads", id}, elem...)...)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (d *driver) Reader(ctx context.Context, sha256 string, offset int64) (io.ReadCloser, error) {
	resp, err := d.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.blobKey(sha256)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-", offset)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == "InvalidRange" {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		if isNotFound(err) {
			return nil, storagedriver.ErrBlobNotFound
		}
		return nil, err
	}

	return resp.Body, nil
}

func (d *driver) Exists(ctx context.Context, sha256 string) (bool, error) {
	_, err := d.S3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.blobKey(sha256)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *driver) deleteObject(ctx context.Context, key string) error {
	_, err := d.S3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(key),
	})
	return err
}

// storeVerified streams r into a temporary object, verifies it and copies it
// to its content addressed key.
func (d *driver) storeVerified(ctx context.Context, r io.Reader, expected digest.Digest) (storagedriver.FileInfo, error) {
	tmp := d.key("tmp", uuid.New().String())
	dg := storagedriver.NewDigester(expected)

	_, err := d.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(tmp),
		Body:        io.TeeReader(r, dg),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return storagedriver.FileInfo{}, err
	}
	defer d.deleteObject(ctx, tmp)

	info, err := dg.Result()
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	exists, err := d.Exists(ctx, info.Sha256)
	if err != nil {
		return storagedriver.FileInfo{}, err
	}
	if exists {
		return info, nil
	}

	_, err = d.S3.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.Bucket),
		Key:        aws.String(d.blobKey(info.Sha256)),
		CopySource: aws.String(d.Bucket + "/" + tmp),
	})
	if err != nil {
		return storagedriver.FileInfo{}, err
	}

	return info, nil
}

func (d *driver) Store(ctx context.Context, r io.Reader, expected digest.Digest) (storagedriver.FileInfo, error) {
	return d.storeVerified(ctx, r, expected)
}

type sessionInfo struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Parts     int       `json:"parts"`
	Size      int64     `json:"size"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *driver) readSession(ctx context.Context, id string) (*sessionInfo, error) {
	resp, err := d.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.uploadKey(id, sessionObject)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, storagedriver.ErrAppendIDNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	var s sessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding upload session %s: %w", id, err)
	}
	return &s, nil
}

func (d *driver) writeSession(ctx context.Context, s *sessionInfo) error {
	p, err := json.Marshal(s)
	if err != nil {
		return err
	}

	_, err = d.S3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.Bucket),
		Key:         aws.String(d.uploadKey(s.ID, sessionObject)),
		Body:        bytes.NewReader(p),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (d *driver) CreateAppendID(ctx context.Context, owner string) (string, error) {
	now := d.clock.Now()
	s := &sessionInfo{ID: uuid.New().String(), Owner: owner, StartedAt: now, UpdatedAt: now}
	if err := d.writeSession(ctx, s); err != nil {
		return "", err
	}
	return s.ID, nil
}

func (d *driver) AppendOwner(ctx context.Context, id string) (string, error) {
	s, err := d.readSession(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Owner, nil
}

func partName(n int) string {
	return fmt.Sprintf("part-%06d", n)
}

func (d *driver) Append(ctx context.Context, id string, r io.Reader) (int64, error) {
	s, err := d.readSession(ctx, id)
	if err != nil {
		return 0, err
	}

	counter := &countingReader{r: r}
	_, err = d.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.uploadKey(id, partName(s.Parts))),
		Body:   counter,
	})
	if err != nil {
		return 0, err
	}

	s.Parts++
	s.Size += counter.n
	s.UpdatedAt = d.clock.Now()
	if err := d.writeSession(ctx, s); err != nil {
		return 0, err
	}

	return s.Size, nil
}

func (d *driver) AppendSize(ctx context.Context, id string) (int64, error) {
	s, err := d.readSession(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.Size, nil
}

func (d *driver) FinishAppend(ctx context.Context, id string, expected digest.Digest) (storagedriver.FileInfo, error) {
	s, err := d.readSession(ctx, id)
	if err != nil {
		return storagedriver.FileInfo{}, err
	}
	defer d.deletePrefix(ctx, d.uploadKey(id)+"/")

	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < s.Parts; i++ {
			resp, err := d.S3.GetObjectWithContext(ctx, &s3.GetObjectInput{
				Bucket: aws.String(d.Bucket),
				Key:    aws.String(d.uploadKey(id, partName(i))),
			})
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			_, err = io.Copy(pw, resp.Body)
			resp.Body.Close()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	info, err := d.storeVerified(ctx, pr, expected)
	pr.Close()
	return info, err
}

func (d *driver) CancelAppend(ctx context.Context, id string) error {
	if _, err := d.readSession(ctx, id); err != nil {
		return err
	}
	return d.deletePrefix(ctx, d.uploadKey(id)+"/")
}

func (d *driver) deletePrefix(ctx context.Context, prefix string) error {
	var keys []*s3.ObjectIdentifier

	err := d.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, o := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: o.Key})
		}
		return true
	})
	if err != nil {
		return err
	}

	for len(keys) > 0 {
		n := len(keys)
		if n > listMax {
			n = listMax
		}
		_, err := d.S3.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.Bucket),
			Delete: &s3.Delete{Objects: keys[:n], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		keys = keys[n:]
	}

	return nil
}

func (d *driver) PurgeUploads(ctx context.Context, olderThan time.Time) (int, error) {
	var ids []string

	err := d.S3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.Bucket),
		Prefix:    aws.String(d.key("uploads") + "/"),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, p := range page.CommonPrefixes {
			ids = append(ids, path.Base(aws.StringValue(p.Prefix)))
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	sort.Strings(ids)

	var purged int
	for _, id := range ids {
		s, err := d.readSession(ctx, id)
		if err != nil && !errors.Is(err, storagedriver.ErrAppendIDNotFound) {
			return purged, err
		}
		if s != nil && !s.UpdatedAt.Before(olderThan) {
			continue
		}

		if err := d.deletePrefix(ctx, d.uploadKey(id)+"/"); err != nil {
			return purged, err
		}
		purged++
	}

	return purged, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
