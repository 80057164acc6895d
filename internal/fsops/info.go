package fsops

import (
	"encoding/hex"
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// FileInfo is the decoded result of a stat call.
type FileInfo struct {
	Path    string
	Mode    fs.FileMode
	RawMode uint32
	Size    int64
	Nlink   uint64
	Uid     uint32 //nolint:revive,stylecheck
	Gid     uint32 //nolint:revive,stylecheck
	Ino     uint64
	Dev     uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

func (fi *FileInfo) IsDir() bool {
	return fi.Mode.IsDir()
}

func (fi *FileInfo) IsRegular() bool {
	return fi.Mode.IsRegular()
}

func newFileInfo(path string, st *unix.Stat_t) *FileInfo {
	return &FileInfo{
		Path:    path,
		Mode:    fileMode(st.Mode),
		RawMode: st.Mode,
		Size:    st.Size,
		Nlink:   uint64(st.Nlink), //nolint:unconvert
		Uid:     st.Uid,
		Gid:     st.Gid,
		Ino:     st.Ino,
		Dev:     uint64(st.Dev), //nolint:unconvert
		Atime:   time.Unix(st.Atim.Unix()),
		Mtime:   time.Unix(st.Mtim.Unix()),
		Ctime:   time.Unix(st.Ctim.Unix()),
	}
}

func fileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)

	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		m |= fs.ModeDir
	case unix.S_IFLNK:
		m |= fs.ModeSymlink
	case unix.S_IFIFO:
		m |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		m |= fs.ModeSocket
	case unix.S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		m |= fs.ModeDevice
	}

	if mode&unix.S_ISUID != 0 {
		m |= fs.ModeSetuid
	}
	if mode&unix.S_ISGID != 0 {
		m |= fs.ModeSetgid
	}
	if mode&unix.S_ISVTX != 0 {
		m |= fs.ModeSticky
	}

	return m
}

// FsInfo is the decoded result of a statfs call.
type FsInfo struct {
	Path       string
	BlockSize  int64
	TotalBytes uint64
	FreeBytes  uint64
	AvailBytes uint64
	Files      uint64
	FreeFiles  uint64
}

func newFsInfo(path string, st *unix.Statfs_t) *FsInfo {
	bsize := uint64(st.Bsize) //nolint:gosec

	return &FsInfo{
		Path:       path,
		BlockSize:  int64(st.Bsize), //nolint:unconvert
		TotalBytes: st.Blocks * bsize,
		FreeBytes:  st.Bfree * bsize,
		AvailBytes: st.Bavail * bsize,
		Files:      st.Files,
		FreeFiles:  st.Ffree,
	}
}

// Digest is the BLAKE3 checksum of a file's contents.
type Digest struct {
	Path string
	Size int64
	Sum  []byte
}

func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum)
}

// WalkSummary counts what a [Handler.Walk] visited.
type WalkSummary struct {
	Files    int64
	Dirs     int64
	Symlinks int64
	Bytes    int64
}

func (s WalkSummary) add(o WalkSummary) WalkSummary {
	return WalkSummary{
		Files:    s.Files + o.Files,
		Dirs:     s.Dirs + o.Dirs,
		Symlinks: s.Symlinks + o.Symlinks,
		Bytes:    s.Bytes + o.Bytes,
	}
}
