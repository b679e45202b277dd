/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package dex

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// decodeStringData decodes a string_data_item: a ULEB128 count of UTF-16
// code units followed by NUL-terminated modified UTF-8.
func decodeStringData(b []byte) (string, error) {
	units, n := binary.Uvarint(b)
	if n <= 0 {
		return "", errors.Wrap(ErrOutOfBounds, "string length")
	}
	b = b[n:]

	var sb strings.Builder
	sb.Grow(int(min(units, uint64(len(b)))))
	var pending rune = -1 // high surrogate waiting for its pair
	flush := func() {
		if pending >= 0 {
			sb.WriteRune(utf8.RuneError)
			pending = -1
		}
	}

	for i := 0; ; {
		if i >= len(b) {
			return "", errors.Wrap(ErrOutOfBounds, "unterminated string")
		}
		c := b[i]
		var r rune
		switch {
		case c == 0:
			flush()
			return sb.String(), nil
		case c < 0x80:
			r = rune(c)
			i++
		case c&0xe0 == 0xc0:
			if i+1 >= len(b) {
				return "", errors.Wrap(ErrOutOfBounds, "truncated string")
			}
			r = rune(c&0x1f)<<6 | rune(b[i+1]&0x3f)
			i += 2
		case c&0xf0 == 0xe0:
			if i+2 >= len(b) {
				return "", errors.Wrap(ErrOutOfBounds, "truncated string")
			}
			r = rune(c&0x0f)<<12 | rune(b[i+1]&0x3f)<<6 | rune(b[i+2]&0x3f)
			i += 3
		default:
			return "", errors.Wrapf(ErrFormat, "bad string byte %#x", c)
		}

		switch {
		case utf16.IsSurrogate(r) && r < 0xdc00:
			flush()
			pending = r
		case utf16.IsSurrogate(r) && pending >= 0:
			sb.WriteRune(utf16.DecodeRune(pending, r))
			pending = -1
		default:
			flush()
			sb.WriteRune(r)
		}
	}
}
