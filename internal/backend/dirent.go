package backend

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// DirentType is the d_type reported by getdents. Filesystems that do not
// record it report [TypeUnknown].
type DirentType uint8

const (
	TypeUnknown DirentType = unix.DT_UNKNOWN
	TypeFIFO    DirentType = unix.DT_FIFO
	TypeChar    DirentType = unix.DT_CHR
	TypeDir     DirentType = unix.DT_DIR
	TypeBlock   DirentType = unix.DT_BLK
	TypeRegular DirentType = unix.DT_REG
	TypeSymlink DirentType = unix.DT_LNK
	TypeSocket  DirentType = unix.DT_SOCK
)

// DirEntry is one raw entry of a readdir result.
type DirEntry struct {
	Name string
	Type DirentType
}

// linux_dirent64 layout: ino(8) off(8) reclen(2) type(1) name(NUL-terminated).
const (
	direntReclenOff = 16
	direntTypeOff   = 18
	direntNameOff   = 19
)

func parseDirents(buf []byte, entries []DirEntry) []DirEntry {
	for len(buf) >= direntNameOff {
		reclen := int(binary.NativeEndian.Uint16(buf[direntReclenOff:]))
		if reclen < direntNameOff || reclen > len(buf) {
			break
		}

		rec := buf[:reclen]
		buf = buf[reclen:]

		if binary.NativeEndian.Uint64(rec) == 0 {
			continue
		}

		name := rec[direntNameOff:]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		if len(name) == 0 || string(name) == "." || string(name) == ".." {
			continue
		}

		entries = append(entries, DirEntry{
			Name: string(name),
			Type: DirentType(rec[direntTypeOff]),
		})
	}

	return entries
}
