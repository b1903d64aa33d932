package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/nodekit"
)

// DefaultPageSize is the listing page size of an ObjectStore
const DefaultPageSize = 1000

type object struct {
	content []byte
	modTime time.Time
}

// ObjectStore is an in-memory flat key-value store. It behaves like a
// cloud bucket: no directories, paginated prefix listings, and deleting a
// missing key succeeds.
type ObjectStore struct {
	mu        sync.RWMutex
	objects   map[string]object
	pageSize  int
	listCalls int
	now       func() time.Time
}

// ObjectStoreOption configures an ObjectStore
type ObjectStoreOption func(*ObjectStore)

// WithPageSize sets how many keys a single listing page returns.
func WithPageSize(n int) ObjectStoreOption {
	return func(s *ObjectStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewObjectStore creates an empty object store
func NewObjectStore(opts ...ObjectStoreOption) *ObjectStore {
	s := &ObjectStore{
		objects:  make(map[string]object),
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFlat creates a flat backend over a fresh in-memory object store.
func NewFlat(storeOpts []ObjectStoreOption, opts ...nodekit.ObjectOption) *nodekit.ObjectBackend {
	return nodekit.NewObjectBackend(NewObjectStore(storeOpts...), opts...)
}

// HeadObject implements nodekit.ObjectStore
func (s *ObjectStore) HeadObject(ctx context.Context, key string) (nodekit.ObjectSummary, error) {
	if err := ctx.Err(); err != nil {
		return nodekit.ObjectSummary{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nodekit.ObjectSummary{}, nodekit.NewPathError("head", key, nodekit.ErrNotExist)
	}
	return nodekit.ObjectSummary{Key: key, Size: int64(len(o.content)), LastModified: o.modTime}, nil
}

// GetObject implements nodekit.ObjectStore
func (s *ObjectStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, nodekit.NewPathError("get", key, nodekit.ErrNotExist)
	}
	data := make([]byte, len(o.content))
	copy(data, o.content)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// PutObject implements nodekit.ObjectStore
func (s *ObjectStore) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nodekit.NewPathError("put", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{content: data, modTime: s.now()}
	return nil
}

// DeleteObject implements nodekit.ObjectStore
func (s *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// CopyObject implements nodekit.ObjectCopier
func (s *ObjectStore) CopyObject(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[from]
	if !ok {
		return nodekit.NewPathError("copy", from, nodekit.ErrNotExist)
	}
	data := make([]byte, len(o.content))
	copy(data, o.content)
	s.objects[to] = object{content: data, modTime: s.now()}
	return nil
}

// ListObjects implements nodekit.ObjectStore. Keys come back in ascending
// order; the continuation token is the last key of the previous page.
func (s *ObjectStore) ListObjects(ctx context.Context, prefix, token string) (nodekit.ObjectPage, error) {
	if err := ctx.Err(); err != nil {
		return nodekit.ObjectPage{}, err
	}
	s.mu.Lock()
	s.listCalls++
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page nodekit.ObjectPage
	for i, k := range keys {
		if i == s.pageSize {
			page.Truncated = true
			break
		}
		o := s.objects[k]
		page.Objects = append(page.Objects, nodekit.ObjectSummary{Key: k, Size: int64(len(o.content)), LastModified: o.modTime})
		page.NextToken = k
	}
	s.mu.Unlock()
	if !page.Truncated {
		page.NextToken = ""
	}
	return page, nil
}

// Keys returns every stored key in ascending order
func (s *ObjectStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ListCalls returns how many listing pages were served
func (s *ObjectStore) ListCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCalls
}

var (
	_ nodekit.ObjectStore  = (*ObjectStore)(nil)
	_ nodekit.ObjectCopier = (*ObjectStore)(nil)
)
