package backend

import (
	"fmt"
	"time"
)

// Op identifies a backend operation.
type Op int

const (
	OpStat Op = iota
	OpLstat
	OpFstat
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpUnlink
	OpRename
	OpChmod
	OpChown
	OpMkdir
	OpRmdir
	OpReaddir
	OpFsync
	OpFtruncate
	OpReadlink
	OpSymlink
	OpLink
	OpUtime
	OpStatfs
	OpChecksum
	opCount
)

type argKind int

const (
	argPath   argKind = iota // string, non-empty
	argFd                    // int
	argFlags                 // int
	argMode                  // uint32
	argID                    // int (uid/gid, -1 leaves unchanged)
	argBytes                 // []byte
	argOffset                // int64
	argTime                  // time.Time
)

type opSpec struct {
	name string
	args []argKind
}

//nolint:gochecknoglobals
var opSpecs = [opCount]opSpec{
	OpStat:      {"stat", []argKind{argPath}},
	OpLstat:     {"lstat", []argKind{argPath}},
	OpFstat:     {"fstat", []argKind{argFd}},
	OpOpen:      {"open", []argKind{argPath, argFlags, argMode}},
	OpClose:     {"close", []argKind{argFd}},
	OpRead:      {"read", []argKind{argFd, argBytes, argOffset}},
	OpWrite:     {"write", []argKind{argFd, argBytes, argOffset}},
	OpUnlink:    {"unlink", []argKind{argPath}},
	OpRename:    {"rename", []argKind{argPath, argPath}},
	OpChmod:     {"chmod", []argKind{argPath, argMode}},
	OpChown:     {"chown", []argKind{argPath, argID, argID}},
	OpMkdir:     {"mkdir", []argKind{argPath, argMode}},
	OpRmdir:     {"rmdir", []argKind{argPath}},
	OpReaddir:   {"readdir", []argKind{argPath}},
	OpFsync:     {"fsync", []argKind{argFd}},
	OpFtruncate: {"ftruncate", []argKind{argFd, argOffset}},
	OpReadlink:  {"readlink", []argKind{argPath}},
	OpSymlink:   {"symlink", []argKind{argPath, argPath}},
	OpLink:      {"link", []argKind{argPath, argPath}},
	OpUtime:     {"utime", []argKind{argPath, argTime, argTime}},
	OpStatfs:    {"statfs", []argKind{argPath}},
	OpChecksum:  {"checksum", []argKind{argPath}},
}

func (op Op) Valid() bool {
	return op >= 0 && op < opCount
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", int(op))
	}

	return opSpecs[op].name
}

func validateArgs(op Op, args []any) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}

	spec := opSpecs[op]
	if len(args) != len(spec.args) {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrInvalidArguments, op, len(spec.args), len(args))
	}

	for i, kind := range spec.args {
		if !kind.accepts(args[i]) {
			return fmt.Errorf("%w: %s argument %d has unexpected type %T", ErrInvalidArguments, op, i, args[i])
		}
	}

	return nil
}

func (k argKind) accepts(v any) bool {
	switch k {
	case argPath:
		s, ok := v.(string)

		return ok && s != ""
	case argFd:
		fd, ok := v.(int)

		return ok && fd >= 0
	case argFlags, argID:
		_, ok := v.(int)

		return ok
	case argMode:
		_, ok := v.(uint32)

		return ok
	case argBytes:
		_, ok := v.([]byte)

		return ok
	case argOffset:
		_, ok := v.(int64)

		return ok
	case argTime:
		_, ok := v.(time.Time)

		return ok
	}

	return false
}
