package nodekit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Service implements every path and node operation on top of a single
// Backend. Operations taking path segments combine them first and then
// delegate to the node form.
type Service struct {
	backend Backend
	flat    FlatBackend
	hier    HierarchicalBackend
	trees   *TreeBuilder

	logger  *zap.Logger
	metrics *Metrics
	limits  ArchiveLimits
}

// New returns a Service over b. b must implement HierarchicalBackend or
// FlatBackend.
func New(b Backend, opts ...Option) (*Service, error) {
	o := processOptions(opts...)
	s := &Service{
		backend: b,
		logger:  o.Logger,
		metrics: o.Metrics,
		limits:  o.ArchiveLimits,
	}
	switch lb := b.(type) {
	case FlatBackend:
		s.flat = lb
		s.trees = NewTreeBuilder(lb)
	case HierarchicalBackend:
		s.hier = lb
	default:
		return nil, fmt.Errorf("%w: backend %T provides no listing", ErrNotSupported, b)
	}
	return s, nil
}

// Backend returns the backend the service runs on.
func (s *Service) Backend() Backend {
	return s.backend
}

// Close releases the backend's connections, if it holds any.
func (s *Service) Close() error {
	if c, ok := s.backend.(Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.Record(op, *err, time.Since(start))
}

func requirePath(op string, parts []string) error {
	if len(parts) == 0 {
		return NewPathError(op, "", fmt.Errorf("%w: operation needs a path", ErrInvalidPath))
	}
	return nil
}

// ============================================================================
// Resolution
// ============================================================================

func (s *Service) resolve(ctx context.Context, path string, shouldExist bool) (Node, bool, error) {
	if isBlank(path) {
		return Root(), true, nil
	}
	p := Strip(path)
	md, err := s.backend.Probe(ctx, p)
	if err != nil {
		return Node{}, false, BackendError("resolve", p, err)
	}
	if !md.Exists() {
		if shouldExist {
			return Node{}, false, NewPathError("resolve", p, ErrNotExist)
		}
		return Node{}, false, nil
	}
	return nodeFromMetadata(p, md), true, nil
}

// Resolve returns the node at the combined parts. It fails with ErrNotExist
// when nothing is stored there. No parts resolve to the root.
func (s *Service) Resolve(ctx context.Context, parts ...string) (Node, error) {
	n, _, err := s.resolve(ctx, Combine(parts...), true)
	return n, err
}

// Lookup is Resolve without the existence requirement: ok is false when
// nothing is stored at the path.
func (s *Service) Lookup(ctx context.Context, parts ...string) (n Node, ok bool, err error) {
	return s.resolve(ctx, Combine(parts...), false)
}

// Exists reports whether anything is stored at the combined parts.
func (s *Service) Exists(ctx context.Context, parts ...string) (bool, error) {
	_, ok, err := s.Lookup(ctx, parts...)
	return ok, err
}

// IsDirectory reports whether a directory exists at the combined parts.
func (s *Service) IsDirectory(ctx context.Context, parts ...string) (bool, error) {
	n, ok, err := s.Lookup(ctx, parts...)
	if err != nil || !ok {
		return false, err
	}
	return n.IsDir, nil
}

// Parent returns the directory containing n. The root has no parent.
func (s *Service) Parent(ctx context.Context, n Node) (Node, bool, error) {
	if n.IsRoot() {
		return Node{}, false, nil
	}
	if !n.HasParent {
		return Root(), true, nil
	}
	p, err := s.Resolve(ctx, n.ParentPath)
	return p, err == nil, err
}

// ParentOf returns the parent of the combined parts; paths without a parent
// segment resolve to the root.
func (s *Service) ParentOf(ctx context.Context, parts ...string) (Node, bool, error) {
	parent, _ := ParentPath(parts...)
	return s.Lookup(ctx, parent)
}

// ============================================================================
// Listing and walking
// ============================================================================

func (s *Service) children(ctx context.Context, dir Node, includeMarkers bool) ([]Node, error) {
	if !dir.IsDir {
		return nil, NewPathError("list", dir.Path, ErrNotDir)
	}
	if s.flat != nil {
		return s.trees.ListLevel(ctx, dir.Path, includeMarkers)
	}
	entries, err := s.hier.ListImmediate(ctx, dir.Path)
	if err != nil {
		return nil, BackendError("list", dir.Path, err)
	}
	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, nodeFromMetadata(Combine(dir.Path, e.Name), e.Metadata))
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes, nil
}

// List returns the direct children of the combined parts, sorted by name.
// An absent path lists as empty.
func (s *Service) List(ctx context.Context, parts ...string) ([]Node, error) {
	n, ok, err := s.Lookup(ctx, parts...)
	if err != nil || !ok {
		return nil, err
	}
	return s.ListNode(ctx, n)
}

// ListWithMarkers is List that keeps directory marker objects of flat
// backends in the result.
func (s *Service) ListWithMarkers(ctx context.Context, parts ...string) (nodes []Node, err error) {
	defer s.observe("list", time.Now(), &err)
	n, ok, err := s.Lookup(ctx, parts...)
	if err != nil || !ok {
		return nil, err
	}
	return s.children(ctx, n, true)
}

// ListNode returns the direct children of dir, sorted by name.
func (s *Service) ListNode(ctx context.Context, dir Node) (nodes []Node, err error) {
	defer s.observe("list", time.Now(), &err)
	s.logger.Debug("list", zap.String("path", dir.Path))
	return s.children(ctx, dir, false)
}

// Walk visits n and everything below it. Files of a directory are visited
// before its subdirectories.
func (s *Service) Walk(ctx context.Context, n Node, v Visitor) (err error) {
	defer s.observe("walk", time.Now(), &err)
	s.logger.Debug("walk", zap.String("path", n.Path))
	if s.flat != nil && n.IsDir {
		tree, err := s.trees.BuildTree(ctx, n)
		if err != nil {
			return err
		}
		return WalkTree(tree, v)
	}
	return walkListing(ctx, n, func(ctx context.Context, dir Node) ([]Node, error) {
		return s.children(ctx, dir, false)
	}, v)
}

// ============================================================================
// Content
// ============================================================================

// Open returns the content of the file at the combined parts.
func (s *Service) Open(ctx context.Context, parts ...string) (io.ReadCloser, error) {
	if err := requirePath("open", parts); err != nil {
		return nil, err
	}
	n, err := s.Resolve(ctx, parts...)
	if err != nil {
		return nil, err
	}
	return s.OpenNode(ctx, n)
}

// OpenNode returns the content of the file n.
func (s *Service) OpenNode(ctx context.Context, n Node) (rc io.ReadCloser, err error) {
	defer s.observe("open", time.Now(), &err)
	if n.IsDir {
		return nil, NewPathError("open", n.Path, ErrIsDir)
	}
	return s.backend.Open(ctx, n.Path)
}

// Bytes returns the whole content of the file n.
func (s *Service) Bytes(ctx context.Context, n Node) (data []byte, err error) {
	rc, err := s.OpenNode(ctx, n)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, BackendError("read", n.Path, err)
	}
	return data, nil
}

// ReadText returns the content of the file at the combined parts as text.
func (s *Service) ReadText(ctx context.Context, parts ...string) (string, error) {
	n, err := s.Resolve(ctx, parts...)
	if err != nil {
		return "", err
	}
	data, err := s.Bytes(ctx, n)
	return string(data), err
}

// Save stores r at the combined parts. Missing parent directories are
// created.
func (s *Service) Save(ctx context.Context, r io.Reader, parts ...string) error {
	return s.save(ctx, r, -1, parts)
}

// SaveBytes stores data at the combined parts.
func (s *Service) SaveBytes(ctx context.Context, data []byte, parts ...string) error {
	return s.save(ctx, bytes.NewReader(data), int64(len(data)), parts)
}

// SaveText stores text at the combined parts.
func (s *Service) SaveText(ctx context.Context, text string, parts ...string) error {
	return s.SaveBytes(ctx, []byte(text), parts...)
}

func (s *Service) save(ctx context.Context, r io.Reader, size int64, parts []string) (err error) {
	defer s.observe("save", time.Now(), &err)
	if err := requirePath("save", parts); err != nil {
		return err
	}
	path := Combine(parts...)
	s.logger.Debug("save", zap.String("path", path), zap.Int64("size", size))
	return s.backend.Write(ctx, path, r, size)
}

// ============================================================================
// Tree mutations
// ============================================================================

// Mkdirs creates the directory at the combined parts and its parents.
func (s *Service) Mkdirs(ctx context.Context, parts ...string) (err error) {
	defer s.observe("mkdirs", time.Now(), &err)
	if err := requirePath("mkdirs", parts); err != nil {
		return err
	}
	path := Combine(parts...)
	s.logger.Debug("mkdirs", zap.String("path", path))
	return s.backend.CreateDirectoryMarker(ctx, path)
}

// Copy copies the node at from to the path to.
func (s *Service) Copy(ctx context.Context, from, to string) error {
	n, err := s.Resolve(ctx, from)
	if err != nil {
		return err
	}
	return s.CopyNode(ctx, n, to)
}

// CopyNode copies src to target. Directories merge into an existing target;
// a file is not copied when target already exists.
func (s *Service) CopyNode(ctx context.Context, src Node, target string) (err error) {
	defer s.observe("copy", time.Now(), &err)
	return s.copyNode(ctx, src, Strip(target))
}

func (s *Service) copyNode(ctx context.Context, src Node, target string) error {
	if !src.IsRoot() {
		md, err := s.backend.Probe(ctx, src.Path)
		if err != nil {
			return BackendError("copy", src.Path, err)
		}
		if !md.Exists() {
			return NewPathError("copy", src.Path, ErrNotExist)
		}
	}
	if src.IsDir {
		children, err := s.children(ctx, src, false)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			return s.backend.CreateDirectoryMarker(ctx, target)
		}
		for _, child := range children {
			if err := s.copyNode(ctx, child, Combine(target, child.Name)); err != nil {
				return err
			}
		}
		return nil
	}

	md, err := s.backend.Probe(ctx, target)
	if err != nil {
		return BackendError("copy", target, err)
	}
	if md.Exists() {
		s.logger.Debug("copy target exists, skipping", zap.String("from", src.Path), zap.String("to", target))
		return nil
	}
	s.logger.Debug("copy", zap.String("from", src.Path), zap.String("to", target))
	if copier, ok := s.backend.(Copier); ok {
		return copier.CopyContent(ctx, src.Path, target)
	}
	return s.streamCopy(ctx, src, target)
}

func (s *Service) streamCopy(ctx context.Context, src Node, target string) (err error) {
	rc, err := s.backend.Open(ctx, src.Path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()
	return s.backend.Write(ctx, target, rc, src.Size)
}

// Move copies from to to and then deletes from, recursively when it is a
// directory.
func (s *Service) Move(ctx context.Context, from, to string) (err error) {
	defer s.observe("move", time.Now(), &err)
	if err := s.Copy(ctx, from, to); err != nil {
		return err
	}
	n, err := s.Resolve(ctx, from)
	if err != nil {
		return err
	}
	return s.DeleteNode(ctx, n, n.IsDir)
}

// Delete removes the node at the combined parts.
func (s *Service) Delete(ctx context.Context, recursive bool, parts ...string) error {
	if err := requirePath("delete", parts); err != nil {
		return err
	}
	n, err := s.Resolve(ctx, parts...)
	if err != nil {
		return err
	}
	return s.DeleteNode(ctx, n, recursive)
}

// DeleteNode removes n. A directory is only removed without recursive when it
// is empty; a flat-store directory holding just its marker counts as empty
// unless the backend's MarkerPolicy says otherwise. A failed recursive
// delete leaves whatever was already removed removed.
func (s *Service) DeleteNode(ctx context.Context, n Node, recursive bool) (err error) {
	defer s.observe("delete", time.Now(), &err)
	s.logger.Debug("delete", zap.String("path", n.Path), zap.Bool("recursive", recursive))
	if !n.IsDir {
		return s.backend.DeleteOne(ctx, n.Path, false)
	}
	if recursive {
		return s.Walk(ctx, n, Visitor{
			File: func(f Node) error {
				return s.backend.DeleteOne(ctx, f.Path, false)
			},
			ExitDir: func(d Node) error {
				if d.IsRoot() {
					return nil
				}
				return s.backend.DeleteOne(ctx, d.Path, true)
			},
		})
	}

	children, err := s.children(ctx, n, true)
	if err != nil {
		return err
	}
	if s.flat != nil && len(children) == 1 && !children[0].IsDir &&
		children[0].Name == s.flat.MarkerName() && markerOnlyIsEmpty(s.backend) {
		return s.backend.DeleteOne(ctx, n.Path, true)
	}
	if len(children) > 0 {
		return NewPathError("delete", n.Path, ErrNotEmpty)
	}
	if n.IsRoot() {
		return nil
	}
	return s.backend.DeleteOne(ctx, n.Path, true)
}

// ============================================================================
// Archives
// ============================================================================

// Zip writes the subtree at root to w as a zip archive. Entry names are the
// node paths relative to root, below prefix when it is not empty.
func (s *Service) Zip(ctx context.Context, root string, w io.Writer, prefix string) error {
	n, err := s.Resolve(ctx, root)
	if err != nil {
		return err
	}
	return s.ZipNode(ctx, n, w, prefix)
}

// ZipNode writes the subtree at root to w as a zip archive.
func (s *Service) ZipNode(ctx context.Context, root Node, w io.Writer, prefix string) (err error) {
	defer s.observe("zip", time.Now(), &err)
	s.logger.Debug("zip", zap.String("path", root.Path), zap.String("prefix", prefix))
	aw := NewArchiveWriter(w)
	add := func(n Node, file bool) error {
		rel := suffixAfter(n.Path, root.Path)
		if !root.IsDir {
			// a single file is packed under its own name
			rel = root.Name
		}
		name := Combine(prefix, rel)
		if name == "" {
			return nil
		}
		if !file {
			return WrapPathErr("zip", n.Path, aw.AddDir(name, n.LastModified))
		}
		rc, err := s.backend.Open(ctx, n.Path)
		if err != nil {
			return WrapPathErr("zip", n.Path, err)
		}
		err = aw.AddFile(name, n.LastModified, rc)
		err = multierr.Append(err, rc.Close())
		return WrapPathErr("zip", n.Path, err)
	}
	err = s.Walk(ctx, root, Visitor{
		EnterDir: func(n Node) error { return add(n, false) },
		File:     func(n Node) error { return add(n, true) },
	})
	return multierr.Append(err, aw.Close())
}

// Unzip extracts the archive in r below target. Directories are created,
// files are streamed into the backend one entry at a time.
func (s *Service) Unzip(ctx context.Context, r io.ReaderAt, size int64, target string, opts ...UnzipOption) (err error) {
	defer s.observe("unzip", time.Now(), &err)
	target = Strip(target)
	s.logger.Debug("unzip", zap.String("target", target), zap.Int64("size", size))
	opts = append([]UnzipOption{WithArchiveLimits(s.limits)}, opts...)
	err = ReadArchive(r, size, ArchiveHandler{
		Dir: func(e ArchiveEntry) error {
			return s.backend.CreateDirectoryMarker(ctx, Combine(target, e.Name))
		},
		File: func(e ArchiveEntry, content io.Reader) error {
			return s.backend.Write(ctx, Combine(target, e.Name), content, e.Size)
		},
	}, opts...)
	return WrapPathErr("unzip", target, err)
}

// UnzipStream is Unzip for archives that cannot be read at random offsets.
// The stream is spooled to a temporary file first.
func (s *Service) UnzipStream(ctx context.Context, r io.Reader, target string, opts ...UnzipOption) (err error) {
	f, size, cleanup, err := spool(r)
	if err != nil {
		return NewPathError("unzip", Strip(target), err)
	}
	defer func() {
		err = multierr.Append(err, cleanup())
	}()
	return s.Unzip(ctx, f, size, target, opts...)
}

// ============================================================================
// Aggregates and metadata
// ============================================================================

// CountFiles returns the number of files at or below n.
func (s *Service) CountFiles(ctx context.Context, n Node) (int64, error) {
	var count int64
	err := s.Walk(ctx, n, Visitor{
		File: func(Node) error {
			count++
			return nil
		},
	})
	return count, err
}

// Size returns the size of the file n, or the total size of the files below
// the directory n. Directory sizes are computed on every call.
func (s *Service) Size(ctx context.Context, n Node) (int64, error) {
	if !n.IsDir {
		md, err := s.probeExisting(ctx, "size", n.Path)
		return md.Size, err
	}
	var total int64
	err := s.Walk(ctx, n, Visitor{
		File: func(f Node) error {
			total += f.Size
			return nil
		},
	})
	return total, err
}

// LastModified returns the modification time reported by the backend.
func (s *Service) LastModified(ctx context.Context, n Node) (time.Time, error) {
	if n.IsRoot() {
		return time.Time{}, nil
	}
	md, err := s.probeExisting(ctx, "lastmodified", n.Path)
	return md.LastModified, err
}

// CreationTime returns the creation time of n on backends that track it.
func (s *Service) CreationTime(ctx context.Context, n Node) (time.Time, error) {
	ct, ok := s.backend.(CreationTimer)
	if !ok {
		return time.Time{}, NewPathError("creationtime", n.Path, ErrNotSupported)
	}
	return ct.CreationTime(ctx, n.Path)
}

func (s *Service) probeExisting(ctx context.Context, op, path string) (Metadata, error) {
	md, err := s.backend.Probe(ctx, path)
	if err != nil {
		return Metadata{}, BackendError(op, path, err)
	}
	if !md.Exists() {
		return Metadata{}, NewPathError(op, path, ErrNotExist)
	}
	return md, nil
}
