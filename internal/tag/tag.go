// Package tag decodes the provenance extended attribute into the key used
// by the provenance tracking table.
//
// Layout: bytes [0,3) are a format prefix that is required but not
// interpreted; bytes [3,11) hold a signed 64-bit key in native byte order.
// Anything past byte 11 is ignored.
package tag

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/provscan/internal/apperr"
)

const (
	KeyOffset = 3
	KeySize   = 8
	MinLen    = KeyOffset + KeySize
)

// Key is the primary key of a provenance record.
type Key int64

// String renders the key's bit pattern as 0x-prefixed, 16 hex digits.
func (k Key) String() string {
	return fmt.Sprintf("0x%016x", uint64(k))
}

// Decode extracts the key from a raw attribute blob.
func Decode(b []byte) (Key, error) {
	if len(b) < MinLen {
		return 0, &apperr.MalformedError{Len: len(b)}
	}
	return Key(int64(binary.NativeEndian.Uint64(b[KeyOffset:MinLen]))), nil
}

// Encode builds a minimal attribute blob carrying k with a zero prefix.
func Encode(k Key) []byte {
	b := make([]byte, MinLen)
	binary.NativeEndian.PutUint64(b[KeyOffset:], uint64(k))
	return b
}

// ParseKey accepts either the 0x-prefixed bit pattern produced by String
// or a signed decimal integer.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		u, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("tag: parse key %q: %w", s, err)
		}
		return Key(int64(u)), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tag: parse key %q: %w", s, err)
	}
	return Key(n), nil
}
