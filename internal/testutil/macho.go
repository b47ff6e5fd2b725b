package testutil

import (
	"bytes"
	gomacho "debug/macho"
	"encoding/binary"
)

// LoadCmdLoadWeakDylib is LC_LOAD_WEAK_DYLIB.
const LoadCmdLoadWeakDylib gomacho.LoadCmd = 0x80000018

// Image accumulates load commands and renders a thin Mach-O image.
type Image struct {
	order      binary.ByteOrder
	is64       bool
	fileType   gomacho.Type
	cpu        gomacho.Cpu
	ncmds      *uint32
	sizeofcmds *uint32
	commands   [][]byte
}

// NewImage returns a big-endian 32-bit executable with no load commands.
func NewImage(opts ...ImageOption) *Image {
	i := &Image{order: binary.BigEndian, fileType: gomacho.TypeExec, cpu: gomacho.CpuPpc}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WithDylib adds LC_LOAD_DYLIB.
func (i *Image) WithDylib(name string) *Image {
	return i.WithNameCommand(gomacho.LoadCmdDylib, 24, name)
}

// WithWeakDylib adds LC_LOAD_WEAK_DYLIB.
func (i *Image) WithWeakDylib(name string) *Image {
	return i.WithNameCommand(LoadCmdLoadWeakDylib, 24, name)
}

// WithDylinker adds LC_LOAD_DYLINKER.
func (i *Image) WithDylinker(name string) *Image {
	return i.WithNameCommand(gomacho.LoadCmdDylinker, 12, name)
}

// WithNameCommand adds a command whose name offset field is nameOffset.
// The name is written directly after the fixed part of the command, so a
// nameOffset other than the fixed size points somewhere else.
func (i *Image) WithNameCommand(cmd gomacho.LoadCmd, nameOffset uint32, name string) *Image {
	fixed := uint32(24)
	if cmd == gomacho.LoadCmdDylinker {
		fixed = 12
	}
	body := make([]byte, fixed-8)
	i.order.PutUint32(body[0:4], nameOffset)
	if fixed == 24 {
		i.order.PutUint32(body[4:8], 2)         // timestamp
		i.order.PutUint32(body[8:12], 0x10000)  // current_version
		i.order.PutUint32(body[12:16], 0x10000) // compatibility_version
	}
	body = append(body, name...)
	body = append(body, 0)
	return i.WithRaw(cmd, i.pad(body))
}

// WithRaw adds a command with the given body; cmdsize is derived.
func (i *Image) WithRaw(cmd gomacho.LoadCmd, body []byte) *Image {
	return i.WithSizedRaw(cmd, uint32(8+len(body)), body)
}

// WithSizedRaw adds a command with an explicit cmdsize, which need not
// match the body.
func (i *Image) WithSizedRaw(cmd gomacho.LoadCmd, cmdsize uint32, body []byte) *Image {
	b := make([]byte, 8, 8+len(body))
	i.order.PutUint32(b[0:4], uint32(cmd))
	i.order.PutUint32(b[4:8], cmdsize)
	i.commands = append(i.commands, append(b, body...))
	return i
}

func (i *Image) pad(body []byte) []byte {
	align := 4
	if i.is64 {
		align = 8
	}
	for (8+len(body))%align != 0 {
		body = append(body, 0)
	}
	return body
}

// Bytes renders the image.
func (i *Image) Bytes() []byte {
	var cmds bytes.Buffer
	for _, c := range i.commands {
		cmds.Write(c)
	}

	ncmds := uint32(len(i.commands))
	if i.ncmds != nil {
		ncmds = *i.ncmds
	}
	sizeofcmds := uint32(cmds.Len())
	if i.sizeofcmds != nil {
		sizeofcmds = *i.sizeofcmds
	}

	magic := gomacho.Magic32
	words := 7
	if i.is64 {
		magic = gomacho.Magic64
		words = 8
	}
	hdr := make([]byte, words*4)
	i.order.PutUint32(hdr[0:], magic)
	i.order.PutUint32(hdr[4:], uint32(i.cpu))
	i.order.PutUint32(hdr[8:], 0)
	i.order.PutUint32(hdr[12:], uint32(i.fileType))
	i.order.PutUint32(hdr[16:], ncmds)
	i.order.PutUint32(hdr[20:], sizeofcmds)
	i.order.PutUint32(hdr[24:], 0)

	return append(hdr, cmds.Bytes()...)
}

// Fat wraps slices in a fat container written in order. Slices are placed
// on 4096-byte boundaries.
func Fat(order binary.ByteOrder, slices ...[]byte) []byte {
	const align = 4096
	head := 8 + 20*len(slices)
	offsets := make([]int, len(slices))
	next := align
	for head > next {
		next += align
	}
	for n, s := range slices {
		offsets[n] = next
		next += len(s)
		for next%align != 0 {
			next++
		}
	}

	out := make([]byte, next)
	order.PutUint32(out[0:], gomacho.MagicFat)
	order.PutUint32(out[4:], uint32(len(slices)))
	for n, s := range slices {
		arch := out[8+20*n:]
		order.PutUint32(arch[0:], uint32(gomacho.CpuPpc))
		order.PutUint32(arch[4:], 0)
		order.PutUint32(arch[8:], uint32(offsets[n]))
		order.PutUint32(arch[12:], uint32(len(s)))
		order.PutUint32(arch[16:], 12)
		copy(out[offsets[n]:], s)
	}
	return out
}
