package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gobeaver/nodekit"
	"github.com/spf13/cobra"
)

type serviceFn func() *nodekit.Service

func pathArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func newLsCmd(svc serviceFn) *cobra.Command {
	var long, markers bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List the direct children of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var nodes []nodekit.Node
			var err error
			if markers {
				nodes, err = svc().ListWithMarkers(ctx, pathArg(args))
			} else {
				nodes, err = svc().List(ctx, pathArg(args))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !long {
				for _, n := range nodes {
					fmt.Fprintln(out, displayName(n))
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, n := range nodes {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", kindOf(n), n.Size, formatTime(n.LastModified), displayName(n))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show kind, size and modification time")
	cmd.Flags().BoolVar(&markers, "markers", false, "include directory marker objects")
	return cmd
}

func newTreeCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the subtree below a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := svc().Resolve(ctx, pathArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			depth := 0
			indent := func() string { return strings.Repeat("  ", depth) }
			return svc().Walk(ctx, root, nodekit.Visitor{
				EnterDir: func(n nodekit.Node) error {
					if n.IsRoot() {
						fmt.Fprintln(out, "/")
					} else {
						fmt.Fprintf(out, "%s%s\n", indent(), displayName(n))
					}
					depth++
					return nil
				},
				File: func(n nodekit.Node) error {
					fmt.Fprintf(out, "%s%s\n", indent(), n.Name)
					return nil
				},
				ExitDir: func(nodekit.Node) error {
					depth--
					return nil
				},
			})
		},
	}
}

func newStatCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show what is stored at a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := svc().Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:     /%s\n", n.Path)
			fmt.Fprintf(out, "kind:     %s\n", kindOf(n))
			if !n.IsDir {
				fmt.Fprintf(out, "size:     %d\n", n.Size)
			}
			fmt.Fprintf(out, "modified: %s\n", formatTime(n.LastModified))
			if created, err := svc().CreationTime(ctx, n); err == nil {
				fmt.Fprintf(out, "created:  %s\n", formatTime(created))
			} else if !nodekit.IsNotSupported(err) {
				return err
			}
			if ext, ok := nodekit.Extension(n.Name); ok && !n.IsDir {
				fmt.Fprintf(out, "ext:      %s\n", ext)
			}
			return nil
		},
	}
}

func newCatCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write the content of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rc, err := svc().Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(cmd.OutOrStdout(), rc)
			return err
		},
	}
}

func newPutCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file|-> <path>",
		Short: "Store a local file, or stdin, at a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				return svc().Save(cmd.Context(), cmd.InOrStdin(), args[1])
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return svc().Save(cmd.Context(), f, args[1])
		},
	}
}

func newMkdirCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories and their parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				if err := svc().Mkdirs(cmd.Context(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCpCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a file or merge a directory into a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc().Copy(cmd.Context(), args[0], args[1])
		},
	}
}

func newMvCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc().Move(cmd.Context(), args[0], args[1])
		},
	}
}

func newRmCmd(svc serviceFn) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range args {
				if err := svc().Delete(cmd.Context(), recursive, p); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete directories with everything below them")
	return cmd
}

func newDuCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "du [path]",
		Short: "Print the total size of the files below a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := svc().Resolve(ctx, pathArg(args))
			if err != nil {
				return err
			}
			size, err := svc().Size(ctx, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t/%s\n", size, n.Path)
			return nil
		},
	}
}

func newCountCmd(svc serviceFn) *cobra.Command {
	return &cobra.Command{
		Use:   "count [path]",
		Short: "Count the files at or below a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := svc().Resolve(ctx, pathArg(args))
			if err != nil {
				return err
			}
			count, err := svc().CountFiles(ctx, n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func newFindCmd(svc serviceFn) *cobra.Command {
	var name, pathPattern string
	var maxDepth int
	cmd := &cobra.Command{
		Use:   "find [path]",
		Short: "Find nodes by name or path glob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := svc().Resolve(ctx, pathArg(args))
			if err != nil {
				return err
			}
			selectors := []nodekit.Selector{nodekit.All()}
			if name != "" {
				selectors = append(selectors, nodekit.Glob(name))
			}
			if pathPattern != "" {
				selectors = append(selectors, nodekit.PathGlob(pathPattern))
			}
			if maxDepth > 0 {
				selectors = append(selectors, nodekit.Depth(maxDepth, root.Path))
			}
			nodes, err := svc().Find(ctx, root, nodekit.And(selectors...))
			if err != nil {
				return err
			}
			for _, n := range nodes {
				fmt.Fprintln(cmd.OutOrStdout(), "/"+n.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "glob matched against node names, e.g. '*.txt'")
	cmd.Flags().StringVar(&pathPattern, "path", "", "glob matched against full paths, e.g. 'docs/**'")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "stop descending below this depth")
	return cmd
}

func newSumCmd(svc serviceFn) *cobra.Command {
	var algorithm string
	cmd := &cobra.Command{
		Use:   "sum <path>",
		Short: "Print the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := svc().Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			sum, err := svc().Checksum(ctx, n, nodekit.ChecksumAlgorithm(algorithm))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  /%s\n", sum, n.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", string(nodekit.ChecksumSHA256), "md5, sha1, sha256, sha512, crc32 or xxhash")
	return cmd
}

func newZipCmd(svc serviceFn) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "zip <path> <archive|->",
		Short: "Pack the subtree at a path into a zip archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if args[1] == "-" {
				return svc().Zip(cmd.Context(), args[0], cmd.OutOrStdout(), prefix)
			}
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}()
			return svc().Zip(cmd.Context(), args[0], f, prefix)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "directory every entry is placed under")
	return cmd
}

func newUnzipCmd(svc serviceFn) *cobra.Command {
	var visibleOnly, verbose bool
	cmd := &cobra.Command{
		Use:   "unzip <archive|-> <path>",
		Short: "Extract a zip archive below a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []nodekit.UnzipOption
			if visibleOnly {
				opts = append(opts, nodekit.WithEntryPredicate(nodekit.VisibleEntries))
			}
			if verbose {
				out := cmd.ErrOrStderr()
				opts = append(opts, nodekit.WithEntryConsumer(func(e nodekit.ArchiveEntry) error {
					fmt.Fprintf(out, "  inflating: %s\n", e.Name)
					return nil
				}))
			}

			if args[0] == "-" {
				return svc().UnzipStream(cmd.Context(), cmd.InOrStdin(), args[1], opts...)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			return svc().Unzip(cmd.Context(), f, info.Size(), args[1], opts...)
		},
	}
	cmd.Flags().BoolVar(&visibleOnly, "visible-only", false, "skip entries with a path segment starting with '.'")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every extracted entry")
	return cmd
}

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the registered storage drivers",
		Args:  cobra.NoArgs,
		// no service needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range nodekit.Drivers() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func displayName(n nodekit.Node) string {
	if n.IsDir {
		return nodekit.AppendSeparator(n.Name)
	}
	return n.Name
}

func kindOf(n nodekit.Node) string {
	if n.IsDir {
		return "dir"
	}
	return "file"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
