package nats

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gobeaver/nodekit"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is the set of object store calls the store makes.
// A jetstream.ObjectStore is adapted to it by NewBucket.
type Bucket interface {
	Info(ctx context.Context, name string) (*jetstream.ObjectInfo, error)
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	Put(ctx context.Context, name string, r io.Reader) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*jetstream.ObjectInfo, error)
}

type objectBucket struct {
	os jetstream.ObjectStore
}

// NewBucket adapts a JetStream object store
func NewBucket(os jetstream.ObjectStore) Bucket {
	return &objectBucket{os: os}
}

func (b *objectBucket) Info(ctx context.Context, name string) (*jetstream.ObjectInfo, error) {
	return b.os.GetInfo(ctx, name)
}

func (b *objectBucket) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.os.Get(ctx, name)
}

func (b *objectBucket) Put(ctx context.Context, name string, r io.Reader) error {
	_, err := b.os.Put(ctx, jetstream.ObjectMeta{Name: name}, r)
	return err
}

func (b *objectBucket) Delete(ctx context.Context, name string) error {
	return b.os.Delete(ctx, name)
}

func (b *objectBucket) List(ctx context.Context) ([]*jetstream.ObjectInfo, error) {
	return b.os.List(ctx)
}

// Store is a nodekit.ObjectStore over a NATS JetStream object store bucket.
// JetStream lists a whole bucket at once, so listings are a single page
// filtered by prefix on the client.
type Store struct {
	bucket Bucket
}

// NewStore creates a JetStream backed object store
func NewStore(b Bucket) *Store {
	return &Store{bucket: b}
}

// New creates a flat nodekit backend over a JetStream object store
func New(os jetstream.ObjectStore, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewStore(NewBucket(os)), opts...)
}

// HeadObject implements nodekit.ObjectStore
func (s *Store) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	info, err := s.bucket.Info(ctx, key)
	if err != nil {
		return nodekit.ObjectSummary{}, mapNATSError("head", key, err)
	}
	return summaryOf(info), nil
}

// GetObject implements nodekit.ObjectStore
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.bucket.Get(ctx, key)
	if err != nil {
		return nil, mapNATSError("get", key, err)
	}
	return rc, nil
}

// PutObject implements nodekit.ObjectStore. Objects are chunked by the
// client, so size is not needed.
func (s *Store) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := s.bucket.Put(ctx, key, r); err != nil {
		return mapNATSError("put", key, err)
	}
	return nil
}

// DeleteObject implements nodekit.ObjectStore
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return mapNATSError("delete", key, err)
	}
	return nil
}

// ListObjects implements nodekit.ObjectStore
func (s *Store) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	infos, err := s.bucket.List(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoObjectsFound) {
		return nodekit.ObjectPage{}, mapNATSError("list", prefix, err)
	}

	var page nodekit.ObjectPage
	for _, info := range infos {
		if info == nil || info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		page.Objects = append(page.Objects, summaryOf(info))
	}
	sort.Slice(page.Objects, func(i, j int) bool { return page.Objects[i].Key < page.Objects[j].Key })
	return page, nil
}

func summaryOf(info *jetstream.ObjectInfo) nodekit.ObjectSummary {
	return nodekit.ObjectSummary{
		Key:          info.Name,
		Size:         int64(info.Size),
		LastModified: info.ModTime.In(time.UTC),
	}
}

func mapNATSError(op, key string, err error) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nodekit.NewPathError(op, key, nodekit.ErrNotExist)
	}
	if errors.Is(err, jetstream.ErrBadObjectMeta) || errors.Is(err, jetstream.ErrInvalidStoreName) {
		return nodekit.NewPathError(op, key, nodekit.ErrInvalidPath)
	}
	return nodekit.BackendError(op, key, err)
}

var _ nodekit.ObjectStore = (*Store)(nil)
