// Package artifact opens model files from the local disk or from S3-compatible storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sadar/internal/config"
)

const s3Scheme = "s3://"

// ErrNoObjectStore is returned for s3:// URIs when no endpoint is configured.
var ErrNoObjectStore = errors.New("s3 endpoint not configured")

// objectAPI is the subset of *minio.Client used here; tests substitute a fake.
type objectAPI interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (w minioClientWrapper) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return w.c.StatObject(ctx, bucketName, objectName, opts)
}

// Opener resolves artifact locations.
type Opener struct {
	api objectAPI
}

// NewOpener builds an opener. Object storage is only reachable when cfg.Endpoint is set.
func NewOpener(cfg config.S3) (*Opener, error) {
	if cfg.Endpoint == "" {
		return &Opener{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Opener{api: minioClientWrapper{c: client}}, nil
}

// Open returns a reader for location, which is a file path or s3://bucket/key.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, s3Scheme) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open artifact: %w", err)
		}
		return f, nil
	}

	bucket, key, err := splitS3(location)
	if err != nil {
		return nil, err
	}
	if o.api == nil {
		return nil, fmt.Errorf("open %s: %w", location, ErrNoObjectStore)
	}
	// GetObject is lazy; stat first so a missing object fails here rather than on first read
	if _, err := o.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat %s: %w", location, err)
	}
	obj, err := o.api.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	return obj, nil
}

func splitS3(location string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	return bucket, key, nil
}
