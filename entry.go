// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"io/fs"
	"strings"
	"time"

	"github.com/lemon4ksan/zipfile/internal"
	"github.com/lemon4ksan/zipfile/internal/sys"
)

// Kind classifies an entry by the object it represents.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	}
	return "file"
}

// Entry is an immutable value snapshot of one archive member, taken at
// iteration time. It pairs the authoritative central directory header
// with the entry's local file header and, when general purpose bit 3 is
// set, the data descriptor that trails the payload.
//
// Entries remain valid after the session mutates or closes, but their
// recorded offsets refer to the archive state they were read from.
type Entry struct {
	central    internal.CentralDirectoryHeader
	local      internal.LocalFileHeader
	descriptor *internal.DataDescriptor

	path string
	kind Kind
}

// Path returns the entry's decoded, /-separated path. Directory entries
// keep their trailing slash.
func (e Entry) Path() string { return e.path }

// Kind returns the entry's classification.
func (e Entry) Kind() Kind { return e.kind }

// IsDir reports whether the entry represents a directory.
func (e Entry) IsDir() bool { return e.kind == KindDirectory }

// CompressionMethod returns the entry's recorded compression method.
func (e Entry) CompressionMethod() CompressionMethod {
	return CompressionMethod(e.central.CompressionMethod)
}

// UncompressedSize returns the payload size before compression.
func (e Entry) UncompressedSize() int64 { return int64(e.central.UncompressedSize) }

// CompressedSize returns the payload size as stored in the archive.
func (e Entry) CompressedSize() int64 { return int64(e.central.CompressedSize) }

// CRC32 returns the recorded checksum of the uncompressed payload.
func (e Entry) CRC32() uint32 { return e.central.CRC32 }

// ModTime returns the recorded modification time (MS-DOS resolution).
func (e Entry) ModTime() time.Time {
	return msDosToTime(e.central.LastModFileDate, e.central.LastModFileTime)
}

// Comment returns the entry's file comment, decoded under the same rule
// as the path.
func (e Entry) Comment() string {
	return decodeText(e.central.Comment, e.central.GeneralPurposeBitFlag)
}

// HeaderOffset returns the offset of the entry's local header within the
// archive it was read from.
func (e Entry) HeaderOffset() int64 { return int64(e.central.LocalHeaderOffset) }

// HasDataDescriptor reports whether the payload is trailed by a data
// descriptor (general purpose bit 3).
func (e Entry) HasDataDescriptor() bool {
	return e.central.GeneralPurposeBitFlag&dataDescriptorFlag != 0
}

// Mode returns the entry's file mode, mapped from the external file
// attributes of the system that made the entry.
func (e Entry) Mode() fs.FileMode {
	host := sys.HostSystem(e.central.VersionMadeBy >> 8)

	if host.IsUnix() {
		unixMode := uint32(e.central.ExternalFileAttributes >> 16)
		mode := fs.FileMode(unixMode & 0777)

		switch unixMode & sys.S_IFMT {
		case sys.S_IFDIR:
			mode |= fs.ModeDir
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		}
		if mode&fs.ModeDir == 0 && e.kind == KindDirectory {
			mode |= fs.ModeDir
		}
		return mode
	}

	if host.IsDOS() {
		var mode fs.FileMode
		if e.kind == KindDirectory {
			mode = 0755 | fs.ModeDir
		} else {
			mode = 0644
		}
		if e.central.ExternalFileAttributes&sys.DOSReadOnly != 0 {
			mode &^= 0222
		}
		return mode
	}

	if e.kind == KindDirectory {
		return 0755 | fs.ModeDir
	}
	return 0644
}

// payloadOffset is the byte offset of the entry's payload: local header
// start plus the header's total on-disk length.
func (e Entry) payloadOffset() int64 {
	return int64(e.central.LocalHeaderOffset) + e.local.TotalLength()
}

// payloadSize is the on-disk payload length used for descriptor location
// and span arithmetic: the compressed size for Deflate, the uncompressed
// size for store.
func (e Entry) payloadSize() int64 {
	if CompressionMethod(e.central.CompressionMethod) == Deflate {
		return int64(e.central.CompressedSize)
	}
	return int64(e.central.UncompressedSize)
}

// span returns the half-open byte range [start, end) the entry occupies:
// local header through payload, data descriptor included when present.
func (e Entry) span() (start, end int64) {
	start = int64(e.central.LocalHeaderOffset)
	end = start + e.local.TotalLength() + e.payloadSize()
	if e.HasDataDescriptor() {
		end += internal.DataDescriptorLen
	}
	return start, end
}

// entryKind derives the entry classification from the OS that made the
// entry and its external attributes. A trailing slash always wins.
func entryKind(h internal.CentralDirectoryHeader, path string) Kind {
	if strings.HasSuffix(path, "/") {
		return KindDirectory
	}

	host := sys.HostSystem(h.VersionMadeBy >> 8)

	if host.IsUnix() {
		switch uint32(h.ExternalFileAttributes>>16) & sys.S_IFMT {
		case sys.S_IFDIR:
			return KindDirectory
		case sys.S_IFLNK:
			return KindSymlink
		}
		return KindFile
	}

	if host == sys.HostSystemFAT && h.ExternalFileAttributes&sys.DOSDirectory != 0 {
		return KindDirectory
	}

	return KindFile
}
