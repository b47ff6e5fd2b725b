package manifest

import (
	"crypto/sha1" //nolint:gosec // manifest format is SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"syscall"

	units "github.com/docker/go-units"
)

// BlockSize is the read size used while hashing.
const BlockSize = 8 * units.KiB

// Digest returns the lowercase hex SHA-1 of everything read from r.
// Interrupted reads are retried; any other read error is returned.
func Digest(r io.Reader) (string, error) {
	h := sha1.New() //nolint:gosec
	buf := make([]byte, BlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return "", fmt.Errorf("failed to read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
