package zip

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gobeaver/nodekit"
	"github.com/klauspost/compress/zip"
)

// Adapter exposes a zip archive as a read-only hierarchical backend.
// Mutations fail with nodekit.ErrReadOnly.
type Adapter struct {
	mu      sync.RWMutex
	file    *os.File
	entries map[string]*entry
	closed  bool
}

// entry is a file or directory of the archive index
type entry struct {
	file     *zip.File // nil for directories
	isDir    bool
	size     int64
	modified time.Time
	children map[string]struct{}
}

// Open indexes the archive at zipPath. Archives with blank, duplicate or
// escaping entry names are rejected with nodekit.ErrCorruptArchive.
func Open(zipPath string) (*Adapter, error) {
	f, err := os.Open(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat zip: %w", err)
	}

	a, err := NewFromReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.file = f
	return a, nil
}

// NewFromReader indexes an archive held in r. The caller keeps ownership of r.
func NewFromReader(r io.ReaderAt, size int64) (*Adapter, error) {
	// ReadArchive only validates here; content is read lazily per Open
	var names []nodekit.ArchiveEntry
	err := nodekit.ReadArchive(r, size, nodekit.ArchiveHandler{},
		nodekit.WithEntryConsumer(func(e nodekit.ArchiveEntry) error {
			names = append(names, e)
			return nil
		}))
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nodekit.ErrCorruptArchive, err)
	}
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	a := &Adapter{entries: map[string]*entry{"": {isDir: true, children: map[string]struct{}{}}}}
	for _, e := range names {
		p := nodekit.Strip(e.Name)
		if p == "" {
			continue
		}
		if e.IsDir {
			a.ensureDir(p, e.Modified)
			continue
		}
		parent, _ := nodekit.ParentPath(p)
		if existing, ok := a.entries[p]; ok && existing.isDir {
			return nil, fmt.Errorf("%w: entry '%s' is both a file and a directory", nodekit.ErrCorruptArchive, e.Name)
		}
		if err := a.ensureDirChecked(parent, e.Modified); err != nil {
			return nil, err
		}
		a.entries[p] = &entry{file: byName[e.Name], size: e.Size, modified: e.Modified}
		a.link(p)
	}
	return a, nil
}

// ensureDirChecked is ensureDir that fails when a file sits on the path
func (a *Adapter) ensureDirChecked(p string, modified time.Time) error {
	for dir := p; dir != ""; dir, _ = nodekit.ParentPath(dir) {
		if e, ok := a.entries[dir]; ok && !e.isDir {
			return fmt.Errorf("%w: entry '%s' is both a file and a directory", nodekit.ErrCorruptArchive, dir)
		}
	}
	a.ensureDir(p, modified)
	return nil
}

// ensureDir adds p and its parents as directories. Missing ancestors are
// created from the root down so each one can be linked into its parent.
func (a *Adapter) ensureDir(p string, modified time.Time) {
	var missing []string
	for dir := p; dir != ""; dir, _ = nodekit.ParentPath(dir) {
		if e, ok := a.entries[dir]; ok {
			if e.isDir && e.modified.IsZero() {
				e.modified = modified
			}
			continue
		}
		missing = append(missing, dir)
	}
	for i := len(missing) - 1; i >= 0; i-- {
		dir := missing[i]
		a.entries[dir] = &entry{isDir: true, modified: modified, children: map[string]struct{}{}}
		a.link(dir)
	}
}

func (a *Adapter) link(p string) {
	parent, name, _ := nodekit.Split(p)
	if dir, ok := a.entries[parent]; ok && dir.isDir {
		dir.children[name] = struct{}{}
	}
}

func (a *Adapter) lookup(op, p string) (*entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, nodekit.NewPathError(op, p, fmt.Errorf("%w: archive closed", nodekit.ErrBackend))
	}
	return a.entries[nodekit.Strip(p)], nil
}

func (e *entry) metadata() nodekit.Metadata {
	if e.isDir {
		return nodekit.Metadata{Kind: nodekit.KindDirectory, LastModified: e.modified}
	}
	return nodekit.Metadata{Kind: nodekit.KindFile, Size: e.size, LastModified: e.modified}
}

// Probe implements nodekit.Backend
func (a *Adapter) Probe(ctx context.Context, p string) (nodekit.Metadata, error) {
	e, err := a.lookup("probe", p)
	if err != nil {
		return nodekit.Metadata{}, err
	}
	if e == nil {
		return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
	}
	return e.metadata(), nil
}

// Open implements nodekit.Backend
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	e, err := a.lookup("open", p)
	if err != nil {
		return nil, err
	}
	switch {
	case e == nil:
		return nil, nodekit.NewPathError("open", p, nodekit.ErrNotExist)
	case e.isDir:
		return nil, nodekit.NewPathError("open", p, nodekit.ErrIsDir)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, nodekit.NewPathError("open", p, fmt.Errorf("%w: %w", nodekit.ErrCorruptArchive, err))
	}
	return rc, nil
}

// Write implements nodekit.Backend
func (a *Adapter) Write(ctx context.Context, p string, r io.Reader, size int64) error {
	return nodekit.NewPathError("write", p, nodekit.ErrReadOnly)
}

// DeleteOne implements nodekit.Backend
func (a *Adapter) DeleteOne(ctx context.Context, p string, dir bool) error {
	return nodekit.NewPathError("delete", p, nodekit.ErrReadOnly)
}

// CreateDirectoryMarker implements nodekit.Backend
func (a *Adapter) CreateDirectoryMarker(ctx context.Context, p string) error {
	return nodekit.NewPathError("mkdirs", p, nodekit.ErrReadOnly)
}

// ListImmediate implements nodekit.HierarchicalBackend
func (a *Adapter) ListImmediate(ctx context.Context, p string) ([]nodekit.Entry, error) {
	e, err := a.lookup("list", p)
	if err != nil {
		return nil, err
	}
	switch {
	case e == nil:
		return nil, nodekit.NewPathError("list", p, nodekit.ErrNotExist)
	case !e.isDir:
		return nil, nodekit.NewPathError("list", p, nodekit.ErrNotDir)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	base := nodekit.Strip(p)
	entries := make([]nodekit.Entry, 0, len(e.children))
	for name := range e.children {
		child := a.entries[nodekit.Combine(base, name)]
		entries = append(entries, nodekit.Entry{Name: name, Metadata: child.metadata()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Paths returns every indexed path, sorted
func (a *Adapter) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	paths := make([]string, 0, len(a.entries))
	for p := range a.entries {
		if p != "" {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Close releases the archive file opened by Open
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

var (
	_ nodekit.HierarchicalBackend = (*Adapter)(nil)
	_ nodekit.Closer              = (*Adapter)(nil)
)
