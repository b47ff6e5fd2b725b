package testutil

import (
	gomacho "debug/macho"
	"encoding/binary"
)

// ImageOption configures a Mach-O test image.
type ImageOption func(*Image)

// WithOrder sets the byte order the image is written in.
func WithOrder(order binary.ByteOrder) ImageOption {
	return func(i *Image) { i.order = order }
}

// As64 writes a 64-bit header.
func As64() ImageOption {
	return func(i *Image) { i.is64 = true }
}

// WithFileType sets the header file type.
func WithFileType(t gomacho.Type) ImageOption {
	return func(i *Image) { i.fileType = t }
}

// WithCPU sets the header CPU type.
func WithCPU(cpu gomacho.Cpu) ImageOption {
	return func(i *Image) { i.cpu = cpu }
}

// WithNCmds overrides the number of load commands in the header.
func WithNCmds(n uint32) ImageOption {
	return func(i *Image) { i.ncmds = &n }
}

// WithSizeOfCmds overrides sizeofcmds in the header.
func WithSizeOfCmds(n uint32) ImageOption {
	return func(i *Image) { i.sizeofcmds = &n }
}
