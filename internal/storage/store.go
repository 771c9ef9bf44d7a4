// Package storage keeps attachment bytes in a MinIO bucket.  Objects are
// addressed by an opaque key; the database only stores that key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/config"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUnavailable    = errors.New("object storage unavailable")
	// ErrFileType rejects uploads that are neither an image nor a PDF.
	ErrFileType = errors.New("file type not allowed")
)

// allowedTypes maps accepted extensions to their content type.
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// ContentType returns the content type for an allowed file name.
func ContentType(fileName string) (string, error) {
	ct, ok := allowedTypes[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFileType, path.Base(fileName))
	}
	return ct, nil
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// objectAPI is the subset of *minio.Client the store calls.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// Store is the attachment blob store.
type Store struct {
	api    objectAPI
	bucket string
	region string
	ttl    time.Duration
	log    zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// New connects a MinIO client.  No request is made until first use.
func New(cfg config.StorageConfig, log zerolog.Logger) (*Store, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return newStore(cl, cfg, log), nil
}

func newStore(api objectAPI, cfg config.StorageConfig, log zerolog.Logger) *Store {
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		api:    api,
		bucket: cfg.Bucket,
		region: cfg.Region,
		ttl:    ttl,
		log:    log.With().Str("component", "storage").Str("bucket", cfg.Bucket).Logger(),
	}
}

// NewKey returns a fresh key for fileName.  Two uploads of the same file
// name never share a key.
func NewKey(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return uuid.NewString() + "/" + base
}

// ensureBucket creates the bucket on first write.
func (s *Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			// a concurrent creator wins the race
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		s.log.Info().Msg("bucket created")
	}
	s.ready = true
	return nil
}

// Put uploads r under a fresh key derived from fileName and returns the key.
func (s *Store) Put(ctx context.Context, r io.Reader, size int64, fileName, contentType string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := NewKey(fileName)
	_, err := s.api.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", classify(err)
	}
	s.log.Debug().Str("key", key).Int64("size", size).Msg("object stored")
	return key, nil
}

// Get opens the object for reading.  The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	st, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classify(err)
	}
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classify(err)
	}
	return obj, ObjectInfo{Key: key, Size: st.Size, ContentType: st.ContentType}, nil
}

// Delete removes the object.  Removing a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(classify(err), ErrObjectNotFound) {
			return nil
		}
		return classify(err)
	}
	return nil
}

// SignedURL returns a time-limited download URL.  A ttl of zero uses the
// configured default.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	u, err := s.api.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", time.Time{}, classify(err)
	}
	return u.String(), time.Now().Add(ttl).UTC(), nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return ErrObjectNotFound
	case "":
		// transport failures carry no S3 error code
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
