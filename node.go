package nodekit

import (
	"time"
)

// Kind is the result of probing a path on a backend.
type Kind int

const (
	// KindAbsent means nothing exists at the probed path.
	KindAbsent Kind = iota
	// KindFile is a regular file or object.
	KindFile
	// KindDirectory is a real or emulated directory.
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "absent"
	}
}

// Metadata is what a backend reports for a single path. It lets a Node be
// built without a second round trip.
type Metadata struct {
	Kind         Kind
	Size         int64
	LastModified time.Time
}

// Exists reports whether the probe found anything.
func (m Metadata) Exists() bool { return m.Kind != KindAbsent }

// IsDir reports whether the probe found a directory.
func (m Metadata) IsDir() bool { return m.Kind == KindDirectory }

// Node is an immutable description of a file or directory. Two nodes with the
// same Path describe the same entry.
//
// Size is always 0 for directories; the aggregate size is computed on demand
// by Service.Size.
type Node struct {
	// ParentPath is the path of the containing directory. It is only
	// meaningful when HasParent is true.
	ParentPath string
	HasParent  bool

	Path         string
	Name         string
	IsDir        bool
	Size         int64
	LastModified time.Time
}

// Root returns the synthetic root node.
func Root() Node {
	return Node{IsDir: true}
}

// IsRoot reports whether n is the root of its backend.
func (n Node) IsRoot() bool {
	return n.Path == ""
}

// newNode builds a node for path, splitting it into parent and name.
func newNode(path string, isDir bool, size int64, modified time.Time) Node {
	parent, name, ok := Split(path)
	if isDir {
		size = 0
	}
	return Node{
		ParentPath:   parent,
		HasParent:    ok,
		Path:         Combine(parent, name),
		Name:         name,
		IsDir:        isDir,
		Size:         size,
		LastModified: modified,
	}
}

// nodeFromMetadata turns a probe result into a node.
func nodeFromMetadata(path string, md Metadata) Node {
	return newNode(path, md.IsDir(), md.Size, md.LastModified)
}

// Entry is one child reported by a hierarchical listing.
type Entry struct {
	Name string
	Metadata
}
