package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/desertwitch/evfs/internal/fsops"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/listing"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// eachPath dispatches one operation per path up front, so all of them are
// in flight together, and prints the outcomes in argument order. Failing
// paths are logged and turn into [ErrSomeFailed].
func eachPath[T any](paths []string,
	dispatch func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[T],
	show func(w io.Writer, v T),
) job {
	return func(ctx context.Context, ops *fsops.Handler) report {
		futures := make([]*future.Future[T], len(paths))
		for i, path := range paths {
			futures[i] = dispatch(ctx, ops, path)
		}

		return func(w io.Writer) error {
			failed := 0

			for i, f := range futures {
				v, err := settled(f)
				if err != nil {
					slog.Error("Operation failed.", "path", paths[i], "err", err)
					failed++

					continue
				}
				if show != nil {
					show(w, v)
				}
			}

			if failed > 0 {
				return fmt.Errorf("(evfs) %d of %d paths: %w", failed, len(paths), ErrSomeFailed)
			}

			return nil
		}
	}
}

func newStatCmd(opts *rootOptions) *cobra.Command {
	var noFollow bool

	cmd := &cobra.Command{
		Use:   "stat PATH...",
		Short: "Show file metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, eachPath(args,
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[*fsops.FileInfo] {
					if noFollow {
						return ops.Lstat(ctx, path)
					}

					return ops.Stat(ctx, path)
				},
				func(w io.Writer, fi *fsops.FileInfo) {
					fmt.Fprintf(w, "%s %4d %5d %5d %9s %s %s\n",
						fi.Mode, fi.Nlink, fi.Uid, fi.Gid,
						humanize.IBytes(uint64(fi.Size)), //nolint:gosec
						fi.Mtime.Format(time.DateTime), fi.Path)
				},
			))
		},
	}
	cmd.Flags().BoolVarP(&noFollow, "no-dereference", "P", false, "do not follow symbolic links")

	return cmd
}

func printNode(w io.Writer, node listing.Node) {
	suffix := ""
	switch {
	case node.Symlink:
		suffix = "@"
	case node.Kind == listing.KindDirectory:
		suffix = "/"
	}
	fmt.Fprintf(w, "%-9s %s%s\n", node.Kind, node.Name, suffix)
}

func newLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls DIR",
		Short: "List and classify the entries of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, ops *fsops.Handler) report {
				f := ops.Ls(ctx, args[0])

				return func(w io.Writer) error {
					l, err := settled(f)

					var lerr *listing.ListingError
					if errors.As(err, &lerr) {
						l = lerr.Listing
						for _, e := range lerr.Errors {
							slog.Error("Entry could not be classified.", "name", e.Name, "err", e.Err)
						}
					} else if err != nil {
						return fmt.Errorf("(evfs) %w", err)
					}

					if l != nil {
						for _, node := range l.Nodes() {
							printNode(w, node)
						}
					}

					if err != nil {
						return fmt.Errorf("(evfs) %w", err)
					}

					return nil
				}
			})
		},
	}
}

func newWalkCmd(opts *rootOptions) *cobra.Command {
	var printPaths bool

	cmd := &cobra.Command{
		Use:   "walk DIR",
		Short: "Recursively count files, directories and bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, ops *fsops.Handler) report {
				var visited []string

				var visit func(listing.Node)
				if printPaths {
					// Runs on the loop goroutine only.
					visit = func(node listing.Node) { visited = append(visited, node.Path) }
				}

				f := ops.Walk(ctx, args[0], visit)

				return func(w io.Writer) error {
					sum, err := settled(f)
					if err != nil {
						return fmt.Errorf("(evfs) %w", err)
					}

					for _, path := range visited {
						fmt.Fprintln(w, path)
					}

					fmt.Fprintf(w, "%s files, %s directories, %s symlinks, %s\n",
						humanize.Comma(sum.Files), humanize.Comma(sum.Dirs), humanize.Comma(sum.Symlinks),
						humanize.IBytes(uint64(sum.Bytes))) //nolint:gosec

					return nil
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&printPaths, "print", "p", false, "print every visited path")

	return cmd
}

func newChecksumCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum FILE...",
		Short: "Print BLAKE3 checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, eachPath(args,
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[fsops.Digest] {
					return ops.Checksum(ctx, path)
				},
				func(w io.Writer, d fsops.Digest) {
					fmt.Fprintf(w, "%s  %s\n", d.Hex(), d.Path)
				},
			))
		},
	}
}

func newMkdirCmd(opts *rootOptions) *cobra.Command {
	var perm string

	cmd := &cobra.Command{
		Use:   "mkdir DIR...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, eachPath(args,
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[struct{}] {
					return ops.Mkdir(ctx, path, perm)
				}, nil,
			))
		},
	}
	cmd.Flags().StringVarP(&perm, "mode", "m", "", "permissions as octal or symbolic clauses")

	return cmd
}

func newChmodCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chmod PERM PATH...",
		Short: "Change permissions",
		Args:  cobra.MinimumNArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			perm := args[0]

			return opts.run(cmd, eachPath(args[1:],
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[struct{}] {
					return ops.Chmod(ctx, path, perm)
				}, nil,
			))
		},
	}
}

func newMvCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mv SRC DST",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, ops *fsops.Handler) report {
				f := ops.Rename(ctx, args[0], args[1])

				return func(io.Writer) error {
					if _, err := settled(f); err != nil {
						return fmt.Errorf("(evfs) %w", err)
					}

					return nil
				}
			})
		},
	}
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	var dirs bool

	cmd := &cobra.Command{
		Use:   "rm PATH...",
		Short: "Remove files, or empty directories with -d",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, eachPath(args,
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[struct{}] {
					if dirs {
						return ops.Rmdir(ctx, path)
					}

					return ops.Unlink(ctx, path)
				}, nil,
			))
		},
	}
	cmd.Flags().BoolVarP(&dirs, "dir", "d", false, "remove empty directories")

	return cmd
}

func newDfCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "df PATH...",
		Short: "Show free space of the filesystems holding each path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, eachPath(args,
				func(ctx context.Context, ops *fsops.Handler, path string) *future.Future[*fsops.FsInfo] {
					return ops.Statfs(ctx, path)
				},
				func(w io.Writer, fi *fsops.FsInfo) {
					used := fi.TotalBytes - fi.FreeBytes

					var pct float64
					if fi.TotalBytes > 0 {
						pct = float64(used) / float64(fi.TotalBytes) * 100 //nolint:mnd
					}

					fmt.Fprintf(w, "%9s %9s %9s %5.1f%% %s\n",
						humanize.IBytes(fi.TotalBytes), humanize.IBytes(used),
						humanize.IBytes(fi.AvailBytes), pct, fi.Path)
				},
			))
		},
	}
}
