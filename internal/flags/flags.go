// Package flags translates symbolic open modes and permission strings into
// the bitmasks expected by the backend syscalls.
//
// Open modes are composed of independent tokens joined by "/", ",", "|" or
// whitespace (for example "read/write/create/truncate"), or given as one of
// the fopen-style shorthands ("r", "r+", "w", "w+", "a", "a+", "wx", "ax",
// ...). Permissions are composed of octal literals ("0644") and chmod-style
// clauses ("u=rw,g=r,o=r"). Unknown tokens are always an error.
package flags

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const maxPermission = 0o7777

//nolint:gochecknoglobals
var openTokens = map[string]int{
	"create":    unix.O_CREAT,
	"truncate":  unix.O_TRUNC,
	"append":    unix.O_APPEND,
	"exclusive": unix.O_EXCL,
	"sync":      unix.O_SYNC,
	"dsync":     unix.O_DSYNC,
	"nofollow":  unix.O_NOFOLLOW,
	"directory": unix.O_DIRECTORY,
	"noatime":   unix.O_NOATIME,
	"nonblock":  unix.O_NONBLOCK,
	"cloexec":   unix.O_CLOEXEC,
}

//nolint:gochecknoglobals
var fopenModes = map[string]int{
	"r":   unix.O_RDONLY,
	"r+":  unix.O_RDWR,
	"rs+": unix.O_RDWR | unix.O_SYNC,
	"w":   unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC,
	"wx":  unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_EXCL,
	"w+":  unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC,
	"wx+": unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC | unix.O_EXCL,
	"a":   unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND,
	"ax":  unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND | unix.O_EXCL,
	"a+":  unix.O_RDWR | unix.O_CREAT | unix.O_APPEND,
	"ax+": unix.O_RDWR | unix.O_CREAT | unix.O_APPEND | unix.O_EXCL,
}

//nolint:gochecknoglobals
var whoBits = map[rune]uint32{
	'u': unix.S_IRWXU,
	'g': unix.S_IRWXG,
	'o': unix.S_IRWXO,
	'a': unix.S_IRWXU | unix.S_IRWXG | unix.S_IRWXO,
}

func tokenize(mode string) []string {
	return strings.FieldsFunc(strings.ToLower(mode), func(r rune) bool {
		switch r {
		case '/', ',', '|', ' ', '\t', '\n':
			return true
		}

		return false
	})
}

// ResolveOpenFlags returns the open(2) flag bitmask for a symbolic mode.
func ResolveOpenFlags(mode string) (int, error) {
	if flags, ok := fopenModes[strings.ToLower(strings.TrimSpace(mode))]; ok {
		return flags, nil
	}

	tokens := tokenize(mode)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("(flags) %q: %w", mode, ErrEmptyMode)
	}

	var read, write bool
	flags := 0

	for _, tok := range tokens {
		switch tok {
		case "read":
			read = true
		case "write":
			write = true
		case "readwrite":
			read, write = true, true
		default:
			bit, ok := openTokens[tok]
			if !ok {
				return 0, fmt.Errorf("(flags) open mode %q: %w: %q", mode, ErrUnknownToken, tok)
			}
			flags |= bit
		}
	}

	switch {
	case read && write:
		flags |= unix.O_RDWR
	case write:
		flags |= unix.O_WRONLY
	default:
		flags |= unix.O_RDONLY
	}

	return flags, nil
}

// ResolvePermission returns the permission bitmask for a symbolic or octal
// permission string.
func ResolvePermission(mode string) (uint32, error) {
	tokens := tokenize(mode)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("(flags) %q: %w", mode, ErrEmptyMode)
	}

	var perm uint32

	for _, tok := range tokens {
		bits, err := resolvePermissionToken(tok)
		if err != nil {
			return 0, fmt.Errorf("(flags) permission %q: %w", mode, err)
		}
		perm |= bits
	}

	return perm, nil
}

func resolvePermissionToken(tok string) (uint32, error) {
	if octal := strings.TrimPrefix(tok, "0o"); isOctal(octal) {
		v, err := strconv.ParseUint(octal, 8, 32)
		if err != nil || v > maxPermission {
			return 0, fmt.Errorf("%w: %q", ErrPermissionRange, tok)
		}

		return uint32(v), nil
	}

	op := strings.IndexAny(tok, "=+")
	if op < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
	}

	who := tok[:op]
	if who == "" {
		who = "a"
	}

	var mask uint32
	for _, w := range who {
		bits, ok := whoBits[w]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
		}
		mask |= bits
	}

	var perm uint32
	for _, p := range tok[op+1:] {
		switch p {
		case 'r':
			perm |= mask & (unix.S_IRUSR | unix.S_IRGRP | unix.S_IROTH)
		case 'w':
			perm |= mask & (unix.S_IWUSR | unix.S_IWGRP | unix.S_IWOTH)
		case 'x':
			perm |= mask & (unix.S_IXUSR | unix.S_IXGRP | unix.S_IXOTH)
		case 's':
			if mask&unix.S_IRWXU != 0 {
				perm |= unix.S_ISUID
			}
			if mask&unix.S_IRWXG != 0 {
				perm |= unix.S_ISGID
			}
		case 't':
			perm |= unix.S_ISVTX
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
		}
	}

	return perm, nil
}

func isOctal(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '7' {
			return false
		}
	}

	return true
}
