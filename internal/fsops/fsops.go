// Package fsops is the typed filesystem facade on top of the scheduler.
//
// Every method returns a future immediately. Flag and permission strings are
// translated before anything is dispatched, so a malformed mode rejects
// without reaching the backend.
package fsops

import (
	"context"
	"fmt"
	"time"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/flags"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/listing"
	"github.com/desertwitch/evfs/internal/scheduler"
	eventloop "github.com/joeycumines/go-eventloop"
	"golang.org/x/sys/unix"
)

const (
	defaultFilePerm = 0o666
	defaultDirPerm  = 0o777
	maxWalkDepth    = 256
)

type invoker interface {
	InvokeCall(ctx context.Context, op backend.Op, args []any, passthrough bool) *future.Future[scheduler.Completion]
	Promises() *eventloop.JS
}

type resolver interface {
	ResolveListing(ctx context.Context, base string, raw []backend.DirEntry) *future.Future[*listing.Listing]
}

type Handler struct {
	invoker  invoker
	resolver resolver
}

func NewHandler(inv invoker, res resolver) *Handler {
	return &Handler{
		invoker:  inv,
		resolver: res,
	}
}

func (h *Handler) promises() *eventloop.JS {
	return h.invoker.Promises()
}

func (h *Handler) call(ctx context.Context, op backend.Op, args ...any) *future.Future[scheduler.Completion] {
	return h.invoker.InvokeCall(ctx, op, args, false)
}

// release dispatches ops that free resources past the in-flight ceiling.
func (h *Handler) release(ctx context.Context, op backend.Op, args ...any) *future.Future[scheduler.Completion] {
	return h.invoker.InvokeCall(ctx, op, args, true)
}

func done(f *future.Future[scheduler.Completion]) *future.Future[struct{}] {
	return future.Map(f, func(scheduler.Completion) (struct{}, error) {
		return struct{}{}, nil
	})
}

func result(f *future.Future[scheduler.Completion]) *future.Future[int64] {
	return future.Map(f, func(c scheduler.Completion) (int64, error) {
		return c.Result, nil
	})
}

func data[T any](f *future.Future[scheduler.Completion]) *future.Future[T] {
	return future.Map(f, func(c scheduler.Completion) (T, error) {
		v, ok := c.Data.(T)
		if !ok {
			var zero T

			return zero, fmt.Errorf("(fsops) %w: %T", ErrUnexpectedData, c.Data)
		}

		return v, nil
	})
}

func (h *Handler) Stat(ctx context.Context, path string) *future.Future[*FileInfo] {
	return future.Map(data[*unix.Stat_t](h.call(ctx, backend.OpStat, path)), func(st *unix.Stat_t) (*FileInfo, error) {
		return newFileInfo(path, st), nil
	})
}

func (h *Handler) Lstat(ctx context.Context, path string) *future.Future[*FileInfo] {
	return future.Map(data[*unix.Stat_t](h.call(ctx, backend.OpLstat, path)), func(st *unix.Stat_t) (*FileInfo, error) {
		return newFileInfo(path, st), nil
	})
}

func (h *Handler) Fstat(ctx context.Context, fd int) *future.Future[*FileInfo] {
	return future.Map(data[*unix.Stat_t](h.call(ctx, backend.OpFstat, fd)), func(st *unix.Stat_t) (*FileInfo, error) {
		return newFileInfo(fmt.Sprintf("fd:%d", fd), st), nil
	})
}

// Open opens path with a symbolic mode such as "r", "w+" or
// "write/create/truncate". perm may be empty, in which case 0666 is used
// for created files.
func (h *Handler) Open(ctx context.Context, path, mode, perm string) *future.Future[int] {
	openFlags, err := flags.ResolveOpenFlags(mode)
	if err != nil {
		return future.Rejected[int](h.promises(), fmt.Errorf("(fsops) open %q: %w", path, err))
	}

	filePerm := uint32(defaultFilePerm)
	if perm != "" {
		if filePerm, err = flags.ResolvePermission(perm); err != nil {
			return future.Rejected[int](h.promises(), fmt.Errorf("(fsops) open %q: %w", path, err))
		}
	}

	return future.Map(h.call(ctx, backend.OpOpen, path, openFlags, filePerm), func(c scheduler.Completion) (int, error) {
		return int(c.Result), nil
	})
}

// Close is never held back by the in-flight ceiling.
func (h *Handler) Close(ctx context.Context, fd int) *future.Future[struct{}] {
	return done(h.release(ctx, backend.OpClose, fd))
}

// Read reads up to n bytes at offset, or at the current file position if
// offset is negative.
func (h *Handler) Read(ctx context.Context, fd, n int, offset int64) *future.Future[[]byte] {
	if n < 0 {
		return future.Rejected[[]byte](h.promises(), fmt.Errorf("(fsops) read: %w: %d", ErrInvalidSize, n))
	}

	return data[[]byte](h.call(ctx, backend.OpRead, fd, make([]byte, n), offset))
}

// Write writes p at offset, or at the current file position if offset is
// negative. It resolves with the number of bytes written.
func (h *Handler) Write(ctx context.Context, fd int, p []byte, offset int64) *future.Future[int64] {
	return result(h.call(ctx, backend.OpWrite, fd, p, offset))
}

func (h *Handler) Unlink(ctx context.Context, path string) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpUnlink, path))
}

func (h *Handler) Rename(ctx context.Context, oldpath, newpath string) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpRename, oldpath, newpath))
}

// Chmod accepts an octal literal or symbolic clauses such as "u=rw,go=r".
func (h *Handler) Chmod(ctx context.Context, path, perm string) *future.Future[struct{}] {
	mode, err := flags.ResolvePermission(perm)
	if err != nil {
		return future.Rejected[struct{}](h.promises(), fmt.Errorf("(fsops) chmod %q: %w", path, err))
	}

	return done(h.call(ctx, backend.OpChmod, path, mode))
}

// Chown changes ownership. An id of -1 leaves it unchanged.
func (h *Handler) Chown(ctx context.Context, path string, uid, gid int) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpChown, path, uid, gid))
}

func (h *Handler) Mkdir(ctx context.Context, path, perm string) *future.Future[struct{}] {
	mode := uint32(defaultDirPerm)
	if perm != "" {
		var err error
		if mode, err = flags.ResolvePermission(perm); err != nil {
			return future.Rejected[struct{}](h.promises(), fmt.Errorf("(fsops) mkdir %q: %w", path, err))
		}
	}

	return done(h.call(ctx, backend.OpMkdir, path, mode))
}

func (h *Handler) Rmdir(ctx context.Context, path string) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpRmdir, path))
}

// Fsync is never held back by the in-flight ceiling.
func (h *Handler) Fsync(ctx context.Context, fd int) *future.Future[struct{}] {
	return done(h.release(ctx, backend.OpFsync, fd))
}

func (h *Handler) Ftruncate(ctx context.Context, fd int, length int64) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpFtruncate, fd, length))
}

func (h *Handler) Readlink(ctx context.Context, path string) *future.Future[string] {
	return data[string](h.call(ctx, backend.OpReadlink, path))
}

func (h *Handler) Symlink(ctx context.Context, target, link string) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpSymlink, target, link))
}

func (h *Handler) Link(ctx context.Context, oldpath, newpath string) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpLink, oldpath, newpath))
}

func (h *Handler) Utime(ctx context.Context, path string, atime, mtime time.Time) *future.Future[struct{}] {
	return done(h.call(ctx, backend.OpUtime, path, atime, mtime))
}

func (h *Handler) Statfs(ctx context.Context, path string) *future.Future[*FsInfo] {
	return future.Map(data[*unix.Statfs_t](h.call(ctx, backend.OpStatfs, path)), func(st *unix.Statfs_t) (*FsInfo, error) {
		return newFsInfo(path, st), nil
	})
}

func (h *Handler) Checksum(ctx context.Context, path string) *future.Future[Digest] {
	return future.Map(h.call(ctx, backend.OpChecksum, path), func(c scheduler.Completion) (Digest, error) {
		sum, ok := c.Data.([]byte)
		if !ok {
			return Digest{}, fmt.Errorf("(fsops) %w: %T", ErrUnexpectedData, c.Data)
		}

		return Digest{Path: path, Size: c.Result, Sum: sum}, nil
	})
}

// Ls reads the directory dir and classifies its entries.
func (h *Handler) Ls(ctx context.Context, dir string) *future.Future[*listing.Listing] {
	return future.FlatMap(data[[]backend.DirEntry](h.call(ctx, backend.OpReaddir, dir)),
		func(raw []backend.DirEntry) *future.Future[*listing.Listing] {
			return h.resolver.ResolveListing(ctx, dir, raw)
		},
	)
}

// WriteFile creates or truncates path and writes p to it. The descriptor is
// closed whether or not the write succeeded.
func (h *Handler) WriteFile(ctx context.Context, path string, p []byte, perm string) *future.Future[int64] {
	return future.FlatMap(h.Open(ctx, path, "w", perm), func(fd int) *future.Future[int64] {
		out := future.New[int64](h.promises())

		h.Write(ctx, fd, p, 0).Finally(func(n int64, werr error) {
			h.Close(ctx, fd).Finally(func(_ struct{}, cerr error) {
				switch {
				case werr != nil:
					out.Reject(werr)
				case cerr != nil:
					out.Reject(cerr)
				default:
					out.Resolve(n)
				}
			})
		})

		return out
	})
}

// Walk visits every node below root depth-first by directory. Directories
// reached through a symbolic link are counted but not entered. visit may be
// nil.
func (h *Handler) Walk(ctx context.Context, root string, visit func(listing.Node)) *future.Future[WalkSummary] {
	return h.walk(ctx, root, visit, 0)
}

func (h *Handler) walk(ctx context.Context, dir string, visit func(listing.Node), depth int) *future.Future[WalkSummary] {
	if depth > maxWalkDepth {
		return future.Rejected[WalkSummary](h.promises(), fmt.Errorf("(fsops) walk %q: %w", dir, ErrWalkTooDeep))
	}

	return future.FlatMap(h.Ls(ctx, dir), func(l *listing.Listing) *future.Future[WalkSummary] {
		parts := make([]*future.Future[WalkSummary], 0, l.Len())

		for _, node := range l.Nodes() {
			if visit != nil {
				visit(node)
			}

			switch {
			case node.Symlink:
				parts = append(parts, future.Resolved(h.promises(), WalkSummary{Symlinks: 1}))

			case node.Kind == listing.KindDirectory:
				parts = append(parts, future.Map(h.walk(ctx, node.Path, visit, depth+1), func(s WalkSummary) (WalkSummary, error) {
					s.Dirs++

					return s, nil
				}))

			default:
				parts = append(parts, future.Map(h.Lstat(ctx, node.Path), func(fi *FileInfo) (WalkSummary, error) {
					return WalkSummary{Files: 1, Bytes: fi.Size}, nil
				}))
			}
		}

		return future.Map(future.All(h.promises(), parts), func(sums []WalkSummary) (WalkSummary, error) {
			var total WalkSummary
			for _, s := range sums {
				total = total.add(s)
			}

			return total, nil
		})
	})
}
