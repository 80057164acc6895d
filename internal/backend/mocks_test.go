package backend

import (
	"os"

	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"
)

// mockOS implements osProvider for tests.
type mockOS struct {
	mock.Mock
}

func (m *mockOS) Open(name string) (*os.File, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*os.File), args.Error(1)
}

func (m *mockOS) Readlink(name string) (string, error) {
	args := m.Called(name)

	return args.String(0), args.Error(1)
}

var _ osProvider = (*mockOS)(nil)

// mockUnix implements unixProvider for tests.
type mockUnix struct {
	mock.Mock
}

func (m *mockUnix) Chmod(path string, mode uint32) error {
	return m.Called(path, mode).Error(0)
}

func (m *mockUnix) Chown(path string, uid, gid int) error {
	return m.Called(path, uid, gid).Error(0)
}

func (m *mockUnix) Close(fd int) error {
	return m.Called(fd).Error(0)
}

func (m *mockUnix) Fstat(fd int, stat *unix.Stat_t) error {
	return m.Called(fd, stat).Error(0)
}

func (m *mockUnix) Fsync(fd int) error {
	return m.Called(fd).Error(0)
}

func (m *mockUnix) Ftruncate(fd int, length int64) error {
	return m.Called(fd, length).Error(0)
}

func (m *mockUnix) Getdents(fd int, buf []byte) (int, error) {
	args := m.Called(fd, buf)

	return args.Int(0), args.Error(1)
}

func (m *mockUnix) Link(oldpath, newpath string) error {
	return m.Called(oldpath, newpath).Error(0)
}

func (m *mockUnix) Lstat(path string, stat *unix.Stat_t) error {
	return m.Called(path, stat).Error(0)
}

func (m *mockUnix) Mkdir(path string, mode uint32) error {
	return m.Called(path, mode).Error(0)
}

func (m *mockUnix) Open(path string, mode int, perm uint32) (int, error) {
	args := m.Called(path, mode, perm)

	return args.Int(0), args.Error(1)
}

func (m *mockUnix) Pread(fd int, p []byte, offset int64) (int, error) {
	args := m.Called(fd, p, offset)

	return args.Int(0), args.Error(1)
}

func (m *mockUnix) Pwrite(fd int, p []byte, offset int64) (int, error) {
	args := m.Called(fd, p, offset)

	return args.Int(0), args.Error(1)
}

func (m *mockUnix) Read(fd int, p []byte) (int, error) {
	args := m.Called(fd, p)

	return args.Int(0), args.Error(1)
}

func (m *mockUnix) Rename(oldpath, newpath string) error {
	return m.Called(oldpath, newpath).Error(0)
}

func (m *mockUnix) Rmdir(path string) error {
	return m.Called(path).Error(0)
}

func (m *mockUnix) Stat(path string, stat *unix.Stat_t) error {
	return m.Called(path, stat).Error(0)
}

func (m *mockUnix) Statfs(path string, buf *unix.Statfs_t) error {
	return m.Called(path, buf).Error(0)
}

func (m *mockUnix) Symlink(oldpath, newpath string) error {
	return m.Called(oldpath, newpath).Error(0)
}

func (m *mockUnix) Unlink(path string) error {
	return m.Called(path).Error(0)
}

func (m *mockUnix) UtimesNano(path string, times []unix.Timespec) error {
	return m.Called(path, times).Error(0)
}

func (m *mockUnix) Write(fd int, p []byte) (int, error) {
	args := m.Called(fd, p)

	return args.Int(0), args.Error(1)
}

var _ unixProvider = (*mockUnix)(nil)
