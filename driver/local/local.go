package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gobeaver/nodekit"
	"github.com/google/uuid"
)

// Write stages content in files named tempPrefix<uuid>tempSuffix.
const (
	tempPrefix = ".nodekit-"
	tempSuffix = ".tmp"
)

// Adapter is a hierarchical backend over a directory of the local disk.
type Adapter struct {
	root string
}

// New creates a local adapter rooted at root, creating the directory if
// needed.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{root: absRoot}, nil
}

// Root returns the absolute directory the adapter serves.
func (a *Adapter) Root() string {
	return a.root
}

// resolve maps a backend path onto the disk, refusing anything that would
// escape the root.
func (a *Adapter) resolve(op, path string) (string, error) {
	fullPath := filepath.Join(a.root, filepath.FromSlash(nodekit.Strip(path)))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", nodekit.NewPathError(op, path, nodekit.ErrInvalidPath)
	}
	return fullPath, nil
}

// Probe implements nodekit.Backend
func (a *Adapter) Probe(ctx context.Context, path string) (nodekit.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nodekit.Metadata{}, err
	}
	fullPath, err := a.resolve("probe", path)
	if err != nil {
		return nodekit.Metadata{}, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		// A file in place of a parent directory also means absent
		if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
			return nodekit.Metadata{Kind: nodekit.KindAbsent}, nil
		}
		return nodekit.Metadata{}, mapError("probe", path, err)
	}
	return metadataOf(info), nil
}

// Open implements nodekit.Backend
func (a *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.resolve("open", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("open", path, err)
	}
	if info.IsDir() {
		return nil, nodekit.NewPathError("open", path, nodekit.ErrIsDir)
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError("open", path, err)
	}
	return f, nil
}

// Write implements nodekit.Backend. Content goes to a temporary file next to
// the target and is renamed into place, so readers never see a partial file.
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := a.resolve("write", path)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return nodekit.NewPathError("write", path, nodekit.ErrIsDir)
	}
	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		return nodekit.NewPathError("write", path, nodekit.ErrIsDir)
	}

	dir := filepath.Dir(fullPath)
	if err := mkdirAll("write", path, dir); err != nil {
		return err
	}

	tmpPath := filepath.Join(dir, tempPrefix+uuid.NewString()+tempSuffix)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return mapError("write", path, err)
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: content}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nodekit.WrapPathErr("write", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return mapError("write", path, err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return mapError("write", path, err)
	}
	return nil
}

// DeleteOne implements nodekit.Backend. Directories must be empty.
func (a *Adapter) DeleteOne(ctx context.Context, path string, dir bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := a.resolve("delete", path)
	if err != nil {
		return err
	}
	if fullPath == a.root {
		return nodekit.NewPathError("delete", path, nodekit.ErrInvalidPath)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("delete", path, err)
	}
	if dir != info.IsDir() {
		if dir {
			return nodekit.NewPathError("delete", path, nodekit.ErrNotDir)
		}
		return nodekit.NewPathError("delete", path, nodekit.ErrIsDir)
	}
	if dir {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return mapError("delete", path, err)
		}
		if len(entries) > 0 {
			return nodekit.NewPathError("delete", path, nodekit.ErrNotEmpty)
		}
	}

	if err := os.Remove(fullPath); err != nil {
		return mapError("delete", path, err)
	}
	return nil
}

// CreateDirectoryMarker implements nodekit.Backend
func (a *Adapter) CreateDirectoryMarker(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := a.resolve("mkdirs", path)
	if err != nil {
		return err
	}
	return mkdirAll("mkdirs", path, fullPath)
}

// ListImmediate implements nodekit.HierarchicalBackend
func (a *Adapter) ListImmediate(ctx context.Context, path string) ([]nodekit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.resolve("list", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("list", path, err)
	}
	if !info.IsDir() {
		return nil, nodekit.NewPathError("list", path, nodekit.ErrNotDir)
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, mapError("list", path, err)
	}

	entries := make([]nodekit.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if isTempFile(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		entries = append(entries, nodekit.Entry{Name: de.Name(), Metadata: metadataOf(info)})
	}
	return entries, nil
}

func isTempFile(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

// CopyContent implements nodekit.Copier
func (a *Adapter) CopyContent(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcPath, err := a.resolve("copy", src)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return mapError("copy", src, err)
	}
	defer srcFile.Close()

	if err := a.Write(ctx, dst, srcFile, -1); err != nil {
		return err
	}

	// Carry over file permissions
	info, err := srcFile.Stat()
	if err != nil {
		return mapError("copy", src, err)
	}
	dstPath, err := a.resolve("copy", dst)
	if err != nil {
		return err
	}
	if err := os.Chmod(dstPath, info.Mode().Perm()); err != nil {
		return mapError("copy", dst, err)
	}
	return nil
}

// CreationTime implements nodekit.CreationTimer. Filesystems that do not
// record a birth time report nodekit.ErrNotSupported.
func (a *Adapter) CreationTime(ctx context.Context, path string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	fullPath, err := a.resolve("creationtime", path)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return time.Time{}, mapError("creationtime", path, err)
	}
	t, ok := birthTime(info)
	if !ok {
		return time.Time{}, nodekit.NewPathError("creationtime", path, nodekit.ErrNotSupported)
	}
	return t, nil
}

// mkdirAll creates dir and its parents. A file in the way is reported as
// nodekit.ErrNotDir.
func mkdirAll(op, path, dir string) error {
	err := os.MkdirAll(dir, 0755)
	if err == nil {
		return nil
	}
	for d := dir; ; d = filepath.Dir(d) {
		if info, statErr := os.Stat(d); statErr == nil {
			if !info.IsDir() {
				return nodekit.NewPathError(op, path, nodekit.ErrNotDir)
			}
			break
		}
		if filepath.Dir(d) == d {
			break
		}
	}
	return mapError(op, path, err)
}

func metadataOf(info os.FileInfo) nodekit.Metadata {
	if info.IsDir() {
		return nodekit.Metadata{Kind: nodekit.KindDirectory, LastModified: info.ModTime()}
	}
	return nodekit.Metadata{Kind: nodekit.KindFile, Size: info.Size(), LastModified: info.ModTime()}
}

// mapError translates os errors into nodekit's error kinds
func mapError(op, path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nodekit.NewPathError(op, path, nodekit.ErrNotExist)
	case errors.Is(err, os.ErrPermission):
		return nodekit.NewPathError(op, path, nodekit.ErrPermission)
	case errors.Is(err, os.ErrExist):
		return nodekit.NewPathError(op, path, nodekit.ErrExist)
	default:
		return nodekit.BackendError(op, path, err)
	}
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ctxReader stops a copy once the context is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var (
	_ nodekit.HierarchicalBackend = (*Adapter)(nil)
	_ nodekit.Copier              = (*Adapter)(nil)
	_ nodekit.CreationTimer       = (*Adapter)(nil)
)
