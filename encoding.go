// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// General purpose bit flags consulted by the core.
const (
	// dataDescriptorFlag (bit 3): sizes and CRC in the local header are
	// zero; the authoritative values trail the payload.
	dataDescriptorFlag = 0x0008

	// utf8Flag (bit 11): filename and comment bytes are UTF-8 rather than
	// CP437.
	utf8Flag = 0x0800
)

// decodeText decodes filename or comment bytes: UTF-8 when bit 11 is set,
// IBM Code Page 437 otherwise.
func decodeText(raw []byte, flags uint16) string {
	if len(raw) == 0 {
		return ""
	}
	if flags&utf8Flag != 0 {
		return string(raw)
	}

	// CP437 maps all 256 byte values; decoding cannot fail.
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// encodeEntryPath validates and encodes an entry path for writing.
// Pure-ASCII paths are stored without the UTF-8 flag so either decoding
// rule recovers them byte-identically; anything else is stored as UTF-8
// with bit 11 set.
func encodeEntryPath(path string) (raw []byte, utf8Flagged bool, err error) {
	if path == "" {
		return nil, false, fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	}
	if len(path) > math.MaxUint16 {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrInvalidEntryPath, len(path))
	}
	if !utf8.ValidString(path) {
		return nil, false, fmt.Errorf("%w: not valid UTF-8", ErrInvalidEntryPath)
	}

	if isASCII(path) {
		return []byte(path), false, nil
	}
	return []byte(path), true, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
