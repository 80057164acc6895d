package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"
)

const direntBufSize = 32 * 1024

func (h *Handler) execute(req *Request) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Backend operation panicked",
				"op", req.Op.String(),
				"id", req.ID.String(),
				"panic", r,
			)
			req.Result = ErrorSentinel
			req.Data = nil
			req.err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	result, data, err := h.run(req.Op, req.Args)
	if err != nil {
		req.Result = ErrorSentinel
		req.err = err

		return
	}

	req.Result = result
	req.Data = data
}

//nolint:forcetypeassert,cyclop,funlen
func (h *Handler) run(op Op, args []any) (int64, any, error) {
	switch op {
	case OpStat, OpLstat:
		var st unix.Stat_t
		stat := h.UnixHandler.Stat
		if op == OpLstat {
			stat = h.UnixHandler.Lstat
		}
		if err := stat(args[0].(string), &st); err != nil {
			return 0, nil, err
		}

		return 0, &st, nil

	case OpFstat:
		var st unix.Stat_t
		if err := h.UnixHandler.Fstat(args[0].(int), &st); err != nil {
			return 0, nil, err
		}

		return 0, &st, nil

	case OpOpen:
		fd, err := h.UnixHandler.Open(args[0].(string), args[1].(int)|unix.O_CLOEXEC, args[2].(uint32))
		if err != nil {
			return 0, nil, err
		}

		return int64(fd), nil, nil

	case OpClose:
		return 0, nil, h.UnixHandler.Close(args[0].(int))

	case OpRead:
		fd, buf, offset := args[0].(int), args[1].([]byte), args[2].(int64)

		var n int
		var err error
		if offset < 0 {
			n, err = h.UnixHandler.Read(fd, buf)
		} else {
			n, err = h.UnixHandler.Pread(fd, buf, offset)
		}
		if err != nil {
			return 0, nil, err
		}

		return int64(n), buf[:n], nil

	case OpWrite:
		fd, buf, offset := args[0].(int), args[1].([]byte), args[2].(int64)

		var n int
		var err error
		if offset < 0 {
			n, err = h.UnixHandler.Write(fd, buf)
		} else {
			n, err = h.UnixHandler.Pwrite(fd, buf, offset)
		}
		if err != nil {
			return 0, nil, err
		}

		return int64(n), nil, nil

	case OpUnlink:
		return 0, nil, h.UnixHandler.Unlink(args[0].(string))

	case OpRename:
		return 0, nil, h.UnixHandler.Rename(args[0].(string), args[1].(string))

	case OpChmod:
		return 0, nil, h.UnixHandler.Chmod(args[0].(string), args[1].(uint32))

	case OpChown:
		return 0, nil, h.UnixHandler.Chown(args[0].(string), args[1].(int), args[2].(int))

	case OpMkdir:
		return 0, nil, h.UnixHandler.Mkdir(args[0].(string), args[1].(uint32))

	case OpRmdir:
		return 0, nil, h.UnixHandler.Rmdir(args[0].(string))

	case OpReaddir:
		entries, err := h.readdir(args[0].(string))
		if err != nil {
			return 0, nil, err
		}

		return int64(len(entries)), entries, nil

	case OpFsync:
		return 0, nil, h.UnixHandler.Fsync(args[0].(int))

	case OpFtruncate:
		return 0, nil, h.UnixHandler.Ftruncate(args[0].(int), args[1].(int64))

	case OpReadlink:
		target, err := h.OSHandler.Readlink(args[0].(string))
		if err != nil {
			return 0, nil, unwrapPathError(err)
		}

		return int64(len(target)), target, nil

	case OpSymlink:
		return 0, nil, h.UnixHandler.Symlink(args[0].(string), args[1].(string))

	case OpLink:
		return 0, nil, h.UnixHandler.Link(args[0].(string), args[1].(string))

	case OpUtime:
		atime, mtime := args[1].(time.Time), args[2].(time.Time)
		times := []unix.Timespec{
			unix.NsecToTimespec(atime.UnixNano()),
			unix.NsecToTimespec(mtime.UnixNano()),
		}

		return 0, nil, h.UnixHandler.UtimesNano(args[0].(string), times)

	case OpStatfs:
		var st unix.Statfs_t
		if err := h.UnixHandler.Statfs(args[0].(string), &st); err != nil {
			return 0, nil, err
		}

		return 0, &st, nil

	case OpChecksum:
		n, sum, err := h.checksum(args[0].(string))
		if err != nil {
			return 0, nil, err
		}

		return n, sum, nil

	case opCount:
	}

	return 0, nil, fmt.Errorf("%w: %s", ErrUnknownOp, op)
}

func (h *Handler) readdir(path string) ([]DirEntry, error) {
	fd, err := h.UnixHandler.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer h.UnixHandler.Close(fd) //nolint:errcheck

	buf := make([]byte, direntBufSize)
	entries := []DirEntry{}

	for {
		n, err := h.UnixHandler.Getdents(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			return nil, err
		}
		if n <= 0 {
			break
		}

		entries = parseDirents(buf[:n], entries)
	}

	return entries, nil
}

func (h *Handler) checksum(path string) (int64, []byte, error) {
	f, err := h.OSHandler.Open(path)
	if err != nil {
		return 0, nil, unwrapPathError(err)
	}
	defer f.Close()

	hasher := blake3.New()

	n, err := io.Copy(hasher, f)
	if err != nil {
		return 0, nil, unwrapPathError(err)
	}

	return n, hasher.Sum(nil), nil
}

// unwrapPathError reduces *fs.PathError values from the os package to their
// underlying errno, so every failure reports the same shape regardless of the
// provider that produced it.
func unwrapPathError(err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return err
}
