package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gobeaver/nodekit"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// Bucket is the set of bucket calls the store makes. *storage.BucketHandle
// is adapted to it by NewBucket.
type Bucket interface {
	Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error)
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, key string) io.WriteCloser
	Delete(ctx context.Context, key string) error
	Copy(ctx context.Context, from, to string) error
	List(ctx context.Context, prefix, token string, pageSize int) (attrs []*storage.ObjectAttrs, next string, err error)
}

type bucketHandle struct {
	h *storage.BucketHandle
}

// NewBucket adapts a storage bucket handle
func NewBucket(h *storage.BucketHandle) Bucket {
	return &bucketHandle{h: h}
}

func (b *bucketHandle) Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	return b.h.Object(key).Attrs(ctx)
}

func (b *bucketHandle) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.h.Object(key).NewReader(ctx)
}

func (b *bucketHandle) NewWriter(ctx context.Context, key string) io.WriteCloser {
	return b.h.Object(key).NewWriter(ctx)
}

func (b *bucketHandle) Delete(ctx context.Context, key string) error {
	return b.h.Object(key).Delete(ctx)
}

func (b *bucketHandle) Copy(ctx context.Context, from, to string) error {
	_, err := b.h.Object(to).CopierFrom(b.h.Object(from)).Run(ctx)
	return err
}

func (b *bucketHandle) List(ctx context.Context, prefix, token string, pageSize int) ([]*storage.ObjectAttrs, string, error) {
	it := b.h.Objects(ctx, &storage.Query{Prefix: prefix})
	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, pageSize, token).NextPage(&attrs)
	return attrs, next, err
}

// Store is a nodekit.ObjectStore over a Google Cloud Storage bucket
type Store struct {
	bucket   Bucket
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

// WithPageSize sets the number of objects per listing page
func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewStore creates a GCS object store
func NewStore(bucket Bucket, options ...StoreOption) *Store {
	s := &Store{
		bucket:   bucket,
		pageSize: 1000,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// New creates a flat nodekit backend over a GCS bucket
func New(client *storage.Client, bucket string, storeOpts []StoreOption, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewStore(NewBucket(client.Bucket(bucket)), storeOpts...), opts...)
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

// HeadObject implements nodekit.ObjectStore
func (s *Store) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	attrs, err := s.bucket.Attrs(ctx, s.key(key))
	if err != nil {
		return nodekit.ObjectSummary{}, mapGCSError("head", key, err)
	}
	return nodekit.ObjectSummary{Key: key, Size: attrs.Size, LastModified: attrs.Updated}, nil
}

// GetObject implements nodekit.ObjectStore
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, s.key(key))
	if err != nil {
		return nil, mapGCSError("get", key, err)
	}
	return r, nil
}

// PutObject implements nodekit.ObjectStore. GCS writers stream, so size is
// not needed.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	w := s.bucket.NewWriter(ctx, s.key(key))
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return mapGCSError("put", key, err)
	}
	if err := w.Close(); err != nil {
		return mapGCSError("put", key, err)
	}
	return nil
}

// DeleteObject implements nodekit.ObjectStore
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, s.key(key))
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return mapGCSError("delete", key, err)
	}
	return nil
}

// CopyObject implements nodekit.ObjectCopier using GCS's native copier
func (s *Store) CopyObject(ctx context.Context, from, to string) error {
	if err := s.bucket.Copy(ctx, s.key(from), s.key(to)); err != nil {
		return mapGCSError("copy", from, err)
	}
	return nil
}

// ListObjects implements nodekit.ObjectStore
func (s *Store) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	attrs, next, err := s.bucket.List(ctx, s.key(prefix), token, s.pageSize)
	if err != nil {
		return nodekit.ObjectPage{}, mapGCSError("list", prefix, err)
	}
	page := nodekit.ObjectPage{
		Objects:   make([]nodekit.ObjectSummary, 0, len(attrs)),
		NextToken: next,
		Truncated: next != "",
	}
	for _, a := range attrs {
		page.Objects = append(page.Objects, nodekit.ObjectSummary{
			Key:          strings.TrimPrefix(a.Name, s.prefix),
			Size:         a.Size,
			LastModified: a.Updated,
		})
	}
	return page, nil
}

func mapGCSError(op, path string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nodekit.NewPathError(op, path, nodekit.ErrNotExist)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return nodekit.NewPathError(op, path, nodekit.ErrNotExist)
		case http.StatusForbidden, http.StatusUnauthorized:
			return nodekit.NewPathError(op, path, nodekit.ErrPermission)
		}
	}
	return nodekit.BackendError(op, path, err)
}

var (
	_ nodekit.ObjectStore  = (*Store)(nil)
	_ nodekit.ObjectCopier = (*Store)(nil)
)
