package macho

import (
	"bytes"
	"encoding/binary"
)

// cursor reads fields out of one complete load command.
type cursor struct {
	buf   []byte
	order binary.ByteOrder
}

func (c cursor) uint32At(off int) (uint32, error) {
	if off < 0 || off+4 > len(c.buf) {
		return 0, ErrTruncated
	}
	return c.order.Uint32(c.buf[off : off+4]), nil
}

// name returns the lc_str whose offset is stored at byte 8. The string
// ends at the first NUL or at the end of the command, and may be empty.
func (c cursor) name() (string, error) {
	cmd, err := c.uint32At(0)
	if err != nil {
		return "", err
	}
	offset, err := c.uint32At(8)
	if err != nil {
		return "", &DecodeError{Cmd: cmd, Msg: "command too short for name offset"}
	}
	if offset >= uint32(len(c.buf)) {
		return "", &DecodeError{Cmd: cmd, Offset: offset, Msg: "name offset out of bounds"}
	}

	s := c.buf[offset:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
