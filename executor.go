package s3select

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

// Executor issues requests against the object store.
type Executor interface {
	// Select runs req server-side and returns the delimited result stream.
	Select(ctx context.Context, req Request) (io.ReadCloser, error)

	// Get returns the raw object content, still compressed.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ExecutorFactory creates the executor owned by a single scan.
type ExecutorFactory func(ctx context.Context, cfg Config) (Executor, error)

// MinioExecutor executes requests with a minio-go client.
type MinioExecutor struct {
	client *minio.Client
}

var _ Executor = (*MinioExecutor)(nil)

// NewMinioExecutor connects a client to cfg.Endpoint using the first
// credential source of CredentialChain that yields a key.
func NewMinioExecutor(_ context.Context, cfg Config) (Executor, error) {
	host, secure, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	creds, err := resolveCredentials(CredentialChain(cfg))
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupDNS
	if cfg.PathStyleAccess {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       cfg.region(),
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioExecutor{client: client}, nil
}

// Select implements Executor.
func (e *MinioExecutor) Select(ctx context.Context, req Request) (io.ReadCloser, error) {
	res, err := e.client.SelectObjectContent(ctx, req.Bucket, req.Key, req.SelectOptions())
	if err != nil {
		return nil, fmt.Errorf("select s3://%s/%s: %w", req.Bucket, req.Key, err)
	}
	return res, nil
}

// Get implements Executor.
func (e *MinioExecutor) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := e.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}
