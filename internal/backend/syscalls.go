package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

type OS struct{}

func (*OS) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (*OS) Readlink(name string) (string, error) {
	return os.Readlink(name)
}

type Unix struct{}

func (*Unix) Stat(path string, stat *unix.Stat_t) error {
	return unix.Stat(path, stat)
}

func (*Unix) Lstat(path string, stat *unix.Stat_t) error {
	return unix.Lstat(path, stat)
}

func (*Unix) Fstat(fd int, stat *unix.Stat_t) error {
	return unix.Fstat(fd, stat)
}

func (*Unix) Open(path string, mode int, perm uint32) (int, error) {
	return unix.Open(path, mode, perm)
}

func (*Unix) Close(fd int) error {
	return unix.Close(fd)
}

func (*Unix) Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func (*Unix) Pread(fd int, p []byte, offset int64) (int, error) {
	return unix.Pread(fd, p, offset)
}

func (*Unix) Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func (*Unix) Pwrite(fd int, p []byte, offset int64) (int, error) {
	return unix.Pwrite(fd, p, offset)
}

func (*Unix) Unlink(path string) error {
	return unix.Unlink(path)
}

func (*Unix) Rename(oldpath, newpath string) error {
	return unix.Rename(oldpath, newpath)
}

func (*Unix) Chmod(path string, mode uint32) error {
	return unix.Chmod(path, mode)
}

func (*Unix) Chown(path string, uid, gid int) error {
	return unix.Chown(path, uid, gid)
}

func (*Unix) Mkdir(path string, mode uint32) error {
	return unix.Mkdir(path, mode)
}

func (*Unix) Rmdir(path string) error {
	return unix.Rmdir(path)
}

func (*Unix) Getdents(fd int, buf []byte) (int, error) {
	return unix.Getdents(fd, buf)
}

func (*Unix) Fsync(fd int) error {
	return unix.Fsync(fd)
}

func (*Unix) Ftruncate(fd int, length int64) error {
	return unix.Ftruncate(fd, length)
}

func (*Unix) Symlink(oldpath, newpath string) error {
	return unix.Symlink(oldpath, newpath)
}

func (*Unix) Link(oldpath, newpath string) error {
	return unix.Link(oldpath, newpath)
}

func (*Unix) UtimesNano(path string, times []unix.Timespec) error {
	return unix.UtimesNano(path, times)
}

func (*Unix) Statfs(path string, buf *unix.Statfs_t) error {
	return unix.Statfs(path, buf)
}
