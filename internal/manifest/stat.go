package manifest

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Unix file type bits as they appear in st_mode.
const (
	modeFifo    = 0o010000
	modeChar    = 0o020000
	modeDir     = 0o040000
	modeBlock   = 0o060000
	modeRegular = 0o100000
	modeSymlink = 0o120000
	modeSocket  = 0o140000
	modeType    = 0o170000
)

type fileKind int

const (
	kindOther fileKind = iota
	kindRegular
	kindDir
	kindSymlink
)

// statInfo is the subset of struct stat a manifest line needs.
type statInfo struct {
	mode   uint32
	uid    uint32
	gid    uint32
	size   int64
	dev    uint64
	hasDev bool
}

func (s statInfo) kind() fileKind {
	switch s.mode & modeType {
	case modeRegular:
		return kindRegular
	case modeDir:
		return kindDir
	case modeSymlink:
		return kindSymlink
	}
	return kindOther
}

func newStatInfo(fi os.FileInfo) statInfo {
	if st, ok := sysStat(fi); ok {
		return st
	}
	return statInfo{mode: unixMode(fi.Mode()), size: fi.Size()}
}

// unixMode rebuilds st_mode from a FileMode for filesystems without
// a native stat.
func unixMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		mode |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		mode |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		mode |= 0o1000
	}
	switch {
	case m&fs.ModeDir != 0:
		mode |= modeDir
	case m&fs.ModeSymlink != 0:
		mode |= modeSymlink
	case m&fs.ModeNamedPipe != 0:
		mode |= modeFifo
	case m&fs.ModeSocket != 0:
		mode |= modeSocket
	case m&fs.ModeCharDevice != 0:
		mode |= modeChar
	case m&fs.ModeDevice != 0:
		mode |= modeBlock
	default:
		mode |= modeRegular
	}
	return mode
}

var errNoReadlink = errors.New("filesystem cannot read symlinks")

// lstat stats name without following a final symlink.
func lstat(afs afero.Fs, name string) (os.FileInfo, error) {
	if l, ok := afs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(name)
		return fi, err
	}
	return afs.Stat(name)
}

// readlink returns the target of the symlink at name.
func readlink(afs afero.Fs, name string) (string, error) {
	if r, ok := afs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(name)
	}
	return "", errNoReadlink
}
