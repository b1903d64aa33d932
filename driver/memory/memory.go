package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/nodekit"
)

// memoryFile represents a file stored in memory
type memoryFile struct {
	content []byte
	modTime time.Time
	created time.Time
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime time.Time
	created time.Time
}

// Adapter is an in-memory hierarchical backend with real directories.
// Useful for tests and scratch space.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size
	now     func() time.Time
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory hierarchical backend
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		maxSize: maxSize,
		now:     time.Now,
	}

	// Create root directory
	now := a.now()
	a.dirs[""] = &memoryDir{modTime: now, created: now}

	return a
}

// Probe implements nodekit.Backend
func (a *Adapter) Probe(ctx context.Context, path string) (nodekit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nodekit.Metadata{}, err
	}
	path = nodekit.Strip(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if f, ok := a.files[path]; ok {
		return nodekit.Metadata{Kind: nodekit.KindFile, Size: int64(len(f.content)), LastModified: f.modTime}, nil
	}
	if d, ok := a.dirs[path]; ok {
		return nodekit.Metadata{Kind: nodekit.KindDirectory, LastModified: d.modTime}, nil
	}
	return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
}

// Open implements nodekit.Backend
func (a *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = nodekit.Strip(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.files[path]
	if !ok {
		if _, isDir := a.dirs[path]; isDir {
			return nil, nodekit.NewPathError("open", path, nodekit.ErrIsDir)
		}
		return nil, nodekit.NewPathError("open", path, nodekit.ErrNotExist)
	}
	// Copy so callers cannot observe later writes
	data := make([]byte, len(f.content))
	copy(data, f.content)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Write implements nodekit.Backend
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = nodekit.Strip(path)

	if !isValidPath(path) {
		return nodekit.NewPathError("write", path, nodekit.ErrInvalidPath)
	}

	// Read content into memory
	data, err := io.ReadAll(content)
	if err != nil {
		return nodekit.NewPathError("write", path, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[path]; isDir {
		return nodekit.NewPathError("write", path, nodekit.ErrIsDir)
	}

	newSize := a.size + int64(len(data))
	existing, exists := a.files[path]
	if exists {
		newSize -= int64(len(existing.content))
	}
	if a.maxSize > 0 && newSize > a.maxSize {
		return nodekit.NewPathError("write", path, fmt.Errorf("%w: storage full", nodekit.ErrBackend))
	}

	if err := a.ensureDirs(parentOf(path)); err != nil {
		return nodekit.WrapPathErr("write", path, err)
	}

	now := a.now()
	created := now
	if exists {
		created = existing.created
	}
	a.files[path] = &memoryFile{content: data, modTime: now, created: created}
	a.size = newSize
	return nil
}

// DeleteOne implements nodekit.Backend. A directory must be empty.
func (a *Adapter) DeleteOne(ctx context.Context, path string, dir bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = nodekit.Strip(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if !dir {
		f, ok := a.files[path]
		if !ok {
			return nodekit.NewPathError("delete", path, nodekit.ErrNotExist)
		}
		a.size -= int64(len(f.content))
		delete(a.files, path)
		return nil
	}

	if path == "" {
		return nodekit.NewPathError("delete", path, nodekit.ErrInvalidPath)
	}
	if _, ok := a.dirs[path]; !ok {
		return nodekit.NewPathError("delete", path, nodekit.ErrNotExist)
	}
	if a.hasChildren(path) {
		return nodekit.NewPathError("delete", path, nodekit.ErrNotEmpty)
	}
	delete(a.dirs, path)
	return nil
}

// CreateDirectoryMarker implements nodekit.Backend
func (a *Adapter) CreateDirectoryMarker(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = nodekit.Strip(path)
	if !isValidPath(path) {
		return nodekit.NewPathError("mkdirs", path, nodekit.ErrInvalidPath)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return nodekit.WrapPathErr("mkdirs", path, a.ensureDirs(path))
}

// ListImmediate implements nodekit.HierarchicalBackend
func (a *Adapter) ListImmediate(ctx context.Context, path string) ([]nodekit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = nodekit.Strip(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, ok := a.dirs[path]; !ok {
		if _, isFile := a.files[path]; isFile {
			return nil, nodekit.NewPathError("list", path, nodekit.ErrNotDir)
		}
		return nil, nodekit.NewPathError("list", path, nodekit.ErrNotExist)
	}

	var entries []nodekit.Entry
	for p, f := range a.files {
		if name, ok := childName(path, p); ok {
			entries = append(entries, nodekit.Entry{
				Name:     name,
				Metadata: nodekit.Metadata{Kind: nodekit.KindFile, Size: int64(len(f.content)), LastModified: f.modTime},
			})
		}
	}
	for p, d := range a.dirs {
		if name, ok := childName(path, p); ok {
			entries = append(entries, nodekit.Entry{
				Name:     name,
				Metadata: nodekit.Metadata{Kind: nodekit.KindDirectory, LastModified: d.modTime},
			})
		}
	}
	return entries, nil
}

// CopyContent implements nodekit.Copier
func (a *Adapter) CopyContent(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src = nodekit.Strip(src)
	dst = nodekit.Strip(dst)

	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.files[src]
	if !ok {
		return nodekit.NewPathError("copy", src, nodekit.ErrNotExist)
	}
	if a.maxSize > 0 && a.size+int64(len(f.content)) > a.maxSize {
		return nodekit.NewPathError("copy", dst, fmt.Errorf("%w: storage full", nodekit.ErrBackend))
	}
	if err := a.ensureDirs(parentOf(dst)); err != nil {
		return nodekit.WrapPathErr("copy", dst, err)
	}
	data := make([]byte, len(f.content))
	copy(data, f.content)
	now := a.now()
	a.files[dst] = &memoryFile{content: data, modTime: now, created: now}
	a.size += int64(len(data))
	return nil
}

// CreationTime implements nodekit.CreationTimer
func (a *Adapter) CreationTime(ctx context.Context, path string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	path = nodekit.Strip(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	if f, ok := a.files[path]; ok {
		return f.created, nil
	}
	if d, ok := a.dirs[path]; ok {
		return d.created, nil
	}
	return time.Time{}, nodekit.NewPathError("creationtime", path, nodekit.ErrNotExist)
}

// Clear removes all files and directories
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.files = make(map[string]*memoryFile)
	a.dirs = map[string]*memoryDir{"": {modTime: now, created: now}}
	a.size = 0
}

// Size returns the current total size of stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureDirs creates path and all its parents.
// Must be called with lock held
func (a *Adapter) ensureDirs(path string) error {
	if path == "" {
		return nil
	}
	var missing []string
	for dir := path; dir != ""; dir = parentOf(dir) {
		if _, isFile := a.files[dir]; isFile {
			return fmt.Errorf("%s: %w", dir, nodekit.ErrNotDir)
		}
		if _, ok := a.dirs[dir]; ok {
			break
		}
		missing = append(missing, dir)
	}
	now := a.now()
	for _, dir := range missing {
		a.dirs[dir] = &memoryDir{modTime: now, created: now}
	}
	return nil
}

// hasChildren reports whether anything is stored below dir.
// Must be called with lock held
func (a *Adapter) hasChildren(dir string) bool {
	prefix := dir + nodekit.Separator
	for p := range a.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	for p := range a.dirs {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func parentOf(path string) string {
	parent, _ := nodekit.ParentPath(path)
	return parent
}

// childName returns the name of p when it sits directly inside dir.
func childName(dir, p string) (string, bool) {
	if p == "" || p == dir {
		return "", false
	}
	rest := p
	if dir != "" {
		if !strings.HasPrefix(p, dir+nodekit.Separator) {
			return "", false
		}
		rest = p[len(dir)+1:]
	}
	if strings.Contains(rest, nodekit.Separator) {
		return "", false
	}
	return rest, true
}

// isValidPath checks if a path is valid (no directory traversal)
func isValidPath(path string) bool {
	for _, segment := range strings.Split(path, nodekit.Separator) {
		if segment == ".." {
			return false
		}
	}
	return true
}

var (
	_ nodekit.HierarchicalBackend = (*Adapter)(nil)
	_ nodekit.Copier              = (*Adapter)(nil)
	_ nodekit.CreationTimer       = (*Adapter)(nil)
)
