package nodekit

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

func init() {
	// Register test drivers
	RegisterDriver("memory", newFakeFSDriver)
	RegisterDriver("memory-flat", func(cfg *Config) (Backend, error) {
		return NewObjectBackend(newFakeStore(cfg.ListPageSize), cfg.ObjectOptions()...), nil
	})
}

func newFakeFSDriver(cfg *Config) (Backend, error) {
	return newFakeFS(), nil
}

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// ============================================================================
// Flat store
// ============================================================================

// fakeStore is an ObjectStore paging its listing pageSize keys at a time
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	pageSize  int
	listCalls int
}

func newFakeStore(pageSize int) *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), pageSize: pageSize}
}

func (s *fakeStore) HeadObject(ctx context.Context, key string) (ObjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return ObjectSummary{}, NewPathError("head", key, ErrNotExist)
	}
	return ObjectSummary{Key: key, Size: int64(len(data)), LastModified: testTime}, nil
}

func (s *fakeStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, NewPathError("get", key, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) PutObject(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return NewPathError("delete", key, ErrNotExist)
	}
	delete(s.objects, key)
	return nil
}

// ListObjects uses the index of the next key as continuation token
func (s *fakeStore) ListObjects(ctx context.Context, prefix, token string) (ObjectPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := len(keys)
	var page ObjectPage
	if s.pageSize > 0 && start+s.pageSize < len(keys) {
		end = start + s.pageSize
		page.Truncated = true
		page.NextToken = strconv.Itoa(end)
	}
	for _, k := range keys[start:end] {
		page.Objects = append(page.Objects, ObjectSummary{Key: k, Size: int64(len(s.objects[k])), LastModified: testTime})
	}
	return page, nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// copyingStore adds a server-side copy to fakeStore
type copyingStore struct {
	*fakeStore
	copies int
}

func (s *copyingStore) CopyObject(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[from]
	if !ok {
		return NewPathError("copy", from, ErrNotExist)
	}
	s.objects[to] = append([]byte(nil), data...)
	s.copies++
	return nil
}

// ============================================================================
// Hierarchical backend
// ============================================================================

// fakeFS is a HierarchicalBackend over two path sets
type fakeFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string][]byte), dirs: map[string]bool{"": true}}
}

func (f *fakeFS) Probe(ctx context.Context, path string) (Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = Strip(path)
	if f.dirs[path] {
		return Metadata{Kind: KindDirectory, LastModified: testTime}, nil
	}
	if data, ok := f.files[path]; ok {
		return Metadata{Kind: KindFile, Size: int64(len(data)), LastModified: testTime}, nil
	}
	return Metadata{Kind: KindAbsent}, nil
}

func (f *fakeFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[Strip(path)]
	if !ok {
		return nil, NewPathError("open", path, ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFS) Write(ctx context.Context, path string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	path = Strip(path)
	if f.dirs[path] {
		return NewPathError("write", path, ErrIsDir)
	}
	f.mkdirsLocked(path, false)
	f.files[path] = data
	return nil
}

func (f *fakeFS) mkdirsLocked(path string, self bool) {
	dir := path
	if !self {
		dir, _ = ParentPath(path)
	}
	for dir != "" {
		f.dirs[dir] = true
		dir, _ = ParentPath(dir)
	}
}

func (f *fakeFS) DeleteOne(ctx context.Context, path string, dir bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = Strip(path)
	if !dir {
		if _, ok := f.files[path]; !ok {
			return NewPathError("delete", path, ErrNotExist)
		}
		delete(f.files, path)
		return nil
	}
	if !f.dirs[path] {
		return NewPathError("delete", path, ErrNotExist)
	}
	prefix := path + Separator
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			return NewPathError("delete", path, ErrNotEmpty)
		}
	}
	for p := range f.dirs {
		if strings.HasPrefix(p, prefix) {
			return NewPathError("delete", path, ErrNotEmpty)
		}
	}
	delete(f.dirs, path)
	return nil
}

func (f *fakeFS) CreateDirectoryMarker(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = Strip(path)
	if _, ok := f.files[path]; ok {
		return NewPathError("mkdirs", path, ErrNotDir)
	}
	f.mkdirsLocked(path, true)
	return nil
}

func (f *fakeFS) ListImmediate(ctx context.Context, path string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = Strip(path)
	var entries []Entry
	// map order; the service sorts
	for p, data := range f.files {
		if parent, _ := ParentPath(p); parent == path {
			_, name, _ := Split(p)
			entries = append(entries, Entry{Name: name, Metadata: Metadata{Kind: KindFile, Size: int64(len(data)), LastModified: testTime}})
		}
	}
	for p := range f.dirs {
		if p == "" {
			continue
		}
		if parent, _ := ParentPath(p); parent == path {
			_, name, _ := Split(p)
			entries = append(entries, Entry{Name: name, Metadata: Metadata{Kind: KindDirectory, LastModified: testTime}})
		}
	}
	return entries, nil
}

var (
	_ FlatBackend         = (*ObjectBackend)(nil)
	_ HierarchicalBackend = (*fakeFS)(nil)
	_ ObjectCopier        = (*copyingStore)(nil)
)
