// Package nodekit provides one file-storage model on top of very different
// backends: local disks, SFTP and WebDAV servers with real directories, and
// flat object stores (S3, MinIO, GCS, Azure Blob, NATS JetStream) that only
// know keys.
//
// Every stored thing is a [Node] addressed by a "/"-separated path without
// leading or trailing separators. The empty path is the root. Paths are built
// with [Combine], which joins any number of segments and strips the
// separators at their edges:
//
//	nodekit.Combine("/reports/", "", "2024/", "q1.pdf") // "reports/2024/q1.pdf"
//
// # Backends
//
// A backend implements [Backend] plus one of two listing styles.
// [HierarchicalBackend] lists a directory natively. [FlatBackend] pages
// through every key below a prefix; the service derives directories from key
// prefixes and from marker objects (".directory" by default) written by
// Mkdirs. Flat stores plug in as an [ObjectStore] wrapped by
// [NewObjectBackend].
//
// Drivers live in driver/<name> and register themselves for [NewFromConfig]
// when imported:
//
//	import _ "github.com/gobeaver/nodekit/driver/s3"
//
//	svc, err := nodekit.NewFromEnv() // BEAVER_NODEKIT_DRIVER=s3 ...
//
// # Operations
//
// [Service] offers the same operations on every backend:
//
//	backend, _ := local.New("./storage")
//	svc, _ := nodekit.New(backend)
//
//	_ = svc.SaveText(ctx, "hello", "docs", "greeting.txt")
//	nodes, _ := svc.List(ctx, "docs")
//	_ = svc.Copy(ctx, "docs", "backup")
//	_ = svc.Delete(ctx, true, "docs")
//
// Walk visits a subtree depth first, files of a directory before its
// subdirectories, each group sorted by name. On flat stores the subtree is
// built from a single listing.
//
// # Archives
//
// Zip packs a subtree into a zip stream with entry names relative to the
// subtree root. Unzip extracts one entry at a time and rejects blank names,
// repeated file names and names escaping the target with ".." as
// [ErrCorruptArchive]. [ArchiveLimits] bound entry count and extracted size.
//
// # Errors
//
// Failures are *[PathError] values wrapping one of the package sentinels;
// test them with errors.Is or the Is* helpers:
//
//	if _, err := svc.Resolve(ctx, "missing"); nodekit.IsNotExist(err) {
//	    // ...
//	}
package nodekit
