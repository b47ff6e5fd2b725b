// Package macho extracts the libraries a Mach-O image links against.
//
// Only the load commands that name a library or the dynamic linker are
// decoded. Everything is bounds checked against the command size, and a
// malformed image yields whatever was found before the problem, never an
// error.
package macho

import (
	gomacho "debug/macho"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	units "github.com/docker/go-units"

	"github.com/darwinbuild/darwinxref/internal/inventory/domain"
	"github.com/darwinbuild/darwinxref/internal/log"
)

const (
	fileHeaderSize32 = 7 * 4
	fileHeaderSize64 = 8 * 4
	fatArchSize      = 5 * 4
	loadCmdHeader    = 2 * 4

	// debug/macho does not define the weak variant.
	loadCmdLoadWeakDylib gomacho.LoadCmd = 0x80000018

	// maxNameCommand bounds the buffer allocated for a single
	// library-naming load command.
	maxNameCommand = 64 * units.KiB
)

// ErrTruncated reports that the input ended inside a structure.
var ErrTruncated = errors.New("macho: truncated input")

// DecodeError describes a load command that could not be decoded.
type DecodeError struct {
	Cmd    uint32
	Offset uint32
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("macho: load command 0x%x: %s (offset %d)", e.Cmd, e.Msg, e.Offset)
}

// Dependency is one library or dynamic linker path named by an image.
type Dependency struct {
	Kind string
	Path string
}

// Result is what Extract found.
type Result struct {
	// MachO is true once a complete thin header has been read.
	MachO        bool
	Dependencies []Dependency
}

// Extract reads r from its current position. Fat containers contribute the
// dependencies of every slice, in slice order, duplicates included.
func Extract(r io.ReadSeeker) Result {
	var res Result
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return res
	}

	magic, err := readMagic(r)
	if err != nil {
		return res
	}

	switch {
	case magic == gomacho.MagicFat:
		extractFat(r, base, binary.BigEndian, &res)
	case swap32(magic) == gomacho.MagicFat:
		extractFat(r, base, binary.LittleEndian, &res)
	default:
		if order, is64, ok := thinMagic(magic); ok {
			extractThin(r, order, is64, &res)
		}
	}
	return res
}

func readMagic(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// thinMagic maps a magic read as big-endian to the image byte order.
func thinMagic(magic uint32) (binary.ByteOrder, bool, bool) {
	switch magic {
	case gomacho.Magic32:
		return binary.BigEndian, false, true
	case gomacho.Magic64:
		return binary.BigEndian, true, true
	}
	switch swap32(magic) {
	case gomacho.Magic32:
		return binary.LittleEndian, false, true
	case gomacho.Magic64:
		return binary.LittleEndian, true, true
	}
	return nil, false, false
}

func swap32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xff00 | (v<<8)&0xff0000 | v<<24
}

func extractFat(r io.ReadSeeker, base int64, order binary.ByteOrder, res *Result) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return
	}
	nfat := order.Uint32(b[:])

	arch := make([]byte, fatArchSize)
	for i := uint32(0); i < nfat; i++ {
		if err := readFull(r, arch); err != nil {
			log.Debug(log.CatMachO, "fat arch table truncated", "index", i, "nfat", nfat)
			return
		}
		offset := order.Uint32(arch[8:12])

		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return
		}
		if _, err := r.Seek(base+int64(offset), io.SeekStart); err == nil {
			if magic, err := readMagic(r); err == nil {
				if sliceOrder, is64, ok := thinMagic(magic); ok {
					extractThin(r, sliceOrder, is64, res)
				}
			}
		}
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return
		}
	}
}

// extractThin decodes a thin image whose magic has already been consumed.
func extractThin(r io.ReadSeeker, order binary.ByteOrder, is64 bool, res *Result) {
	size := fileHeaderSize32
	if is64 {
		size = fileHeaderSize64
	}
	hdr := make([]byte, size-4)
	if err := readFull(r, hdr); err != nil {
		return
	}
	res.MachO = true

	fileType := gomacho.Type(order.Uint32(hdr[8:12]))
	ncmds := order.Uint32(hdr[12:16])

	switch fileType {
	case gomacho.TypeExec, gomacho.TypeDylib, gomacho.TypeBundle:
	default:
		return
	}

	var lc [loadCmdHeader]byte
	for i := uint32(0); i < ncmds; i++ {
		if err := readFull(r, lc[:]); err != nil {
			log.Debug(log.CatMachO, "load commands truncated", "index", i)
			return
		}
		cmd := gomacho.LoadCmd(order.Uint32(lc[0:4]))
		cmdsize := order.Uint32(lc[4:8])
		if cmdsize < loadCmdHeader {
			log.Debug(log.CatMachO, "bad load command size", "cmd", uint32(cmd), "cmdsize", cmdsize)
			return
		}

		if !namesLibrary(cmd) || cmdsize > maxNameCommand {
			if _, err := r.Seek(int64(cmdsize-loadCmdHeader), io.SeekCurrent); err != nil {
				return
			}
			continue
		}

		buf := make([]byte, cmdsize)
		copy(buf, lc[:])
		if err := readFull(r, buf[loadCmdHeader:]); err != nil {
			log.Debug(log.CatMachO, "load command truncated", "cmd", uint32(cmd))
			return
		}

		name, err := cursor{buf: buf, order: order}.name()
		if err != nil {
			log.Debug(log.CatMachO, "skipping load command", "error", err)
			continue
		}
		res.Dependencies = append(res.Dependencies, Dependency{Kind: domain.DependencyKindLib, Path: name})
	}
}

func namesLibrary(cmd gomacho.LoadCmd) bool {
	switch cmd {
	case gomacho.LoadCmdDylib, loadCmdLoadWeakDylib, gomacho.LoadCmdDylinker:
		return true
	}
	return false
}

func readFull(r io.Reader, b []byte) error {
	if _, err := io.ReadFull(r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return err
	}
	return nil
}
