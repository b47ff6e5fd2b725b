// Package manifest registers the files a project installs.
//
// A Builder walks a destination root (or reads a listing of paths below
// it), writes one manifest line per file, directory and symlink, and
// replaces the project's file and dependency records in one registration.
package manifest

import (
	"fmt"
	"io"
	"strings"
)

// PlaceholderChecksum is written for entries that are not checksummed.
var PlaceholderChecksum = strings.Repeat(" ", 40)

// ErrorChecksum is written when the prebinding helper fails on a file.
const ErrorChecksum = "ERROR"

// Entry is one manifest line.
type Entry struct {
	Checksum string
	Mode     uint32
	UID      uint32
	GID      uint32
	Size     int64
	// Path is relative to the root and starts with "/".
	Path   string
	Target string
}

// WriteTo writes the entry as
//
//	<checksum> <mode-octal> <uid> <gid> <size> .<path>[ -> <target>]
func (e Entry) WriteTo(w io.Writer) (int64, error) {
	var link string
	if e.Target != "" {
		link = " -> " + e.Target
	}
	n, err := fmt.Fprintf(w, "%s %o %d %d %d .%s%s\n",
		e.Checksum, e.Mode, e.UID, e.GID, e.Size, e.Path, link)
	return int64(n), err
}
