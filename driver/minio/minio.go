package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gobeaver/nodekit"
	"github.com/minio/minio-go/v7"
)

// API is the subset of *minio.Core the store needs
type API interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	PutObject(ctx context.Context, bucket, object string, data io.Reader, size int64, md5Base64, sha256Hex string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	CopyObject(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string, metadata map[string]string, srcOpts minio.CopySrcOptions, dstOpts minio.PutObjectOptions) (minio.ObjectInfo, error)
	ListObjectsV2(bucketName, objectPrefix, startAfter, continuationToken, delimiter string, maxkeys int) (minio.ListBucketV2Result, error)
}

// Store is a nodekit.ObjectStore over a MinIO (or any S3 compatible) bucket
type Store struct {
	client   API
	bucket   string
	prefix   string
	pageSize int
}

// StoreOption is a function that configures a Store
type StoreOption func(*Store)

// WithPrefix keeps every key of the store below prefix
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		prefix = nodekit.Strip(prefix)
		if prefix != "" {
			prefix += "/"
		}
		s.prefix = prefix
	}
}

// WithPageSize sets max keys for listings
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewStore creates a MinIO object store
func NewStore(client API, bucket string, options ...StoreOption) *Store {
	s := &Store{
		client:   client,
		bucket:   bucket,
		pageSize: 1000,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// New creates a flat nodekit backend over a MinIO bucket
func New(client API, bucket string, storeOpts []StoreOption, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewStore(client, bucket, storeOpts...), opts...)
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

// HeadObject implements nodekit.ObjectStore
func (s *Store) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(key), minio.StatObjectOptions{})
	if err != nil {
		return nodekit.ObjectSummary{}, mapMinIOError("head", key, err)
	}
	return nodekit.ObjectSummary{Key: key, Size: info.Size, LastModified: info.LastModified}, nil
}

// GetObject implements nodekit.ObjectStore
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, _, _, err := s.client.GetObject(ctx, s.bucket, s.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinIOError("get", key, err)
	}
	return rc, nil
}

// PutObject implements nodekit.ObjectStore. A single PUT needs the length,
// so content of unknown size is buffered.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	if size < 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nodekit.NewPathError("put", key, err)
		}
		r, size = bytes.NewReader(data), int64(len(data))
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(key), r, size, "", "", minio.PutObjectOptions{})
	if err != nil {
		return mapMinIOError("put", key, err)
	}
	return nil
}

// DeleteObject implements nodekit.ObjectStore
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(key), minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	mapped := mapMinIOError("delete", key, err)
	if nodekit.IsNotExist(mapped) {
		return nil
	}
	return mapped
}

// CopyObject implements nodekit.ObjectCopier with a server-side copy
func (s *Store) CopyObject(ctx context.Context, from, to string) error {
	_, err := s.client.CopyObject(ctx, s.bucket, s.key(from), s.bucket, s.key(to), nil,
		minio.CopySrcOptions{}, minio.PutObjectOptions{})
	if err != nil {
		return mapMinIOError("copy", from, err)
	}
	return nil
}

// ListObjects implements nodekit.ObjectStore
func (s *Store) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	if err := ctx.Err(); err != nil {
		return nodekit.ObjectPage{}, err
	}
	result, err := s.client.ListObjectsV2(s.bucket, s.key(prefix), "", token, "", s.pageSize)
	if err != nil {
		return nodekit.ObjectPage{}, mapMinIOError("list", prefix, err)
	}
	page := nodekit.ObjectPage{
		Objects:   make([]nodekit.ObjectSummary, 0, len(result.Contents)),
		NextToken: result.NextContinuationToken,
		Truncated: result.IsTruncated,
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, nodekit.ObjectSummary{
			Key:          strings.TrimPrefix(obj.Key, s.prefix),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return page, nil
}

func mapMinIOError(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == http.StatusNotFound:
		return nodekit.NewPathError(op, key, nodekit.ErrNotExist)
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		return nodekit.NewPathError(op, key, nodekit.ErrPermission)
	}
	return nodekit.BackendError(op, key, err)
}

var (
	_ nodekit.ObjectStore  = (*Store)(nil)
	_ nodekit.ObjectCopier = (*Store)(nil)
	_ API                  = (*minio.Core)(nil)
)
