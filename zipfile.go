// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipfile reads, creates, and modifies ZIP archives in place on a
// local filesystem.
//
// An archive is accessed through a session opened in one of three modes:
// read, create, or update. The session owns the backing file for its
// lifetime and exposes the archive as an indexed collection of entries
// anchored on the End of Central Directory record.
//
// # Basic Usage
//
// Listing an existing archive:
//
//	archive, _ := zipfile.Open("backup.zip", zipfile.ModeRead)
//	defer archive.Close()
//	for entry, err := range archive.Entries() {
//		if err != nil {
//			break
//		}
//		fmt.Println(entry.Path(), entry.UncompressedSize())
//	}
//
// Creating an archive and adding files:
//
//	archive, _ := zipfile.Open("backup.zip", zipfile.ModeCreate)
//	defer archive.Close()
//	archive.AddBytes("notes/readme.txt", data, zipfile.WithCompression(zipfile.Deflate))
//
// Removing an entry from an existing archive:
//
//	archive, _ := zipfile.Open("backup.zip", zipfile.ModeUpdate)
//	defer archive.Close()
//	entry, _ := archive.Entry("notes/readme.txt")
//	archive.Remove(entry)
//
// Sessions are single-threaded: they are not safe for concurrent use and
// callers must serialize access. Mutations rewrite the archive in place
// and are not atomic across process crashes; a failure mid-write leaves
// the file in an undefined state.
package zipfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/lemon4ksan/zipfile/internal"
)

// AccessMode selects how a session opens its backing file.
type AccessMode int

const (
	// ModeRead opens an existing archive for reading only.
	ModeRead AccessMode = iota
	// ModeCreate creates a new empty archive; the target must not exist.
	ModeCreate
	// ModeUpdate opens an existing archive for reading and mutation.
	ModeUpdate
)

// Defaults applied when no option overrides them.
const (
	// DefaultChunkSize governs the memory footprint of streaming
	// operations: payloads move through buffers of this size.
	DefaultChunkSize = 16 * 1024

	// DefaultPermissions is the POSIX mode recorded for entries added by
	// Add, AddBytes, and AddDirectory unless WithPermissions overrides it.
	// AddFile records the source file's permission bits instead.
	DefaultPermissions fs.FileMode = 0o755
)

// eocdScanBound limits the backward scan for the end of central directory
// record: 22 bytes of record plus a maximal 65535-byte comment, rounded up.
const eocdScanBound = 66000

// Option configures a session at open time.
type Option func(*Archive)

// WithChunkSize sets the buffer size for streaming reads and writes.
// Non-positive values are ignored.
func WithChunkSize(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithLogger attaches a structured logger for debug records. By default
// the session discards all log output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = l
	}
}

// Archive is a session over a single ZIP file. It owns the backing file
// exclusively until Close. The file position after any public operation
// is unspecified; callers must not rely on it.
type Archive struct {
	path string
	mode AccessMode

	file *os.File
	size int64 // Current archive length in bytes

	// Parsed end of central directory record and its offset within the
	// file. After a successful mutation commit these always match the
	// record persisted on disk.
	eocd       internal.EndOfCentralDirectory
	eocdOffset int64

	chunkSize int
	logger    *slog.Logger
}

// Open establishes a session over the archive at path.
//
//   - ModeRead fails if the path is missing or unreadable, and requires a
//     parseable end of central directory record.
//   - ModeCreate fails if the path already exists; the new file's sole
//     content is a 22-byte empty end of central directory record.
//   - ModeUpdate fails if the path is missing or unwritable.
func Open(path string, mode AccessMode, opts ...Option) (*Archive, error) {
	a := &Archive{
		path:      path,
		mode:      mode,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	switch mode {
	case ModeRead:
		err = a.openExisting(os.O_RDONLY, ErrUnreadableArchive)
	case ModeCreate:
		err = a.create()
	case ModeUpdate:
		err = a.openExisting(os.O_RDWR, ErrUnwritableArchive)
	default:
		return nil, fmt.Errorf("%w: unknown access mode %d", ErrUnreadableArchive, mode)
	}
	if err != nil {
		return nil, err
	}

	a.log().Debug("session opened",
		"path", path, "mode", int(mode), "entries", a.eocd.TotalEntries, "size", a.size)

	return a, nil
}

// Close releases the backing file. The session must not be used afterwards.
func (a *Archive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// Path returns the location of the backing file.
func (a *Archive) Path() string { return a.path }

// Mode returns the session's access mode.
func (a *Archive) Mode() AccessMode { return a.mode }

// Comment returns the archive-level comment stored in the end of central
// directory record, decoded as UTF-8.
func (a *Archive) Comment() string { return string(a.eocd.Comment) }

// Len returns the number of entries recorded in the end of central
// directory.
func (a *Archive) Len() int { return int(a.eocd.TotalEntries) }

func (a *Archive) openExisting(flag int, kind error) error {
	f, err := os.OpenFile(a.path, flag, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", kind, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", kind, err)
	}

	a.file = f
	a.size = stat.Size()

	if err := a.scanEndOfCentralDirectory(); err != nil {
		f.Close()
		a.file = nil
		return err
	}

	return nil
}

func (a *Archive) create() error {
	if _, err := os.Lstat(a.path); err == nil {
		return fmt.Errorf("%w: %s already exists", ErrUnwritableArchive, a.path)
	}

	f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnwritableArchive, err)
	}

	empty := internal.EndOfCentralDirectory{}
	if _, err := f.Write(empty.Encode()); err != nil {
		f.Close()
		os.Remove(a.path)
		return fmt.Errorf("%w: write empty archive: %v", ErrUnwritableArchive, err)
	}

	a.file = f
	a.size = internal.EndOfCentralDirLen
	a.eocd = empty
	a.eocdOffset = 0

	return nil
}

// scanEndOfCentralDirectory walks backwards from the end of the file
// looking for the record signature, then parses the full record including
// its comment tail.
func (a *Archive) scanEndOfCentralDirectory() error {
	if a.size < internal.EndOfCentralDirLen {
		return fmt.Errorf("%w: file too small", ErrUnreadableArchive)
	}

	const bufSize = 1024
	buf := make([]byte, bufSize)

	lowest := max(a.size-eocdScanBound, 0)

	windowEnd := a.size
	for windowEnd-lowest >= 4 {
		windowStart := max(windowEnd-bufSize, lowest)
		n := int(windowEnd - windowStart)

		if _, err := a.file.ReadAt(buf[:n], windowStart); err != nil && err != io.EOF {
			return fmt.Errorf("%w: read at %d: %v", ErrUnreadableArchive, windowStart, err)
		}

		for p := n - 4; p >= 0; p-- {
			if binary.LittleEndian.Uint32(buf[p:p+4]) != internal.EndOfCentralDirSignature {
				continue
			}

			recordOffset := windowStart + int64(p)
			if recordOffset+internal.EndOfCentralDirLen > a.size {
				continue
			}

			sr := io.NewSectionReader(a.file, recordOffset, a.size-recordOffset)
			eocd, err := internal.ReadEndOfCentralDirectory(sr)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnreadableArchive, err)
			}

			if int64(eocd.CentralDirectoryOffset)+int64(eocd.CentralDirectorySize) > recordOffset {
				return fmt.Errorf("%w: central directory overlaps end record", ErrUnreadableArchive)
			}

			a.eocd = eocd
			a.eocdOffset = recordOffset
			return nil
		}

		if windowStart == lowest {
			break
		}
		// Overlap by 3 bytes so signatures crossing window boundaries are
		// still seen.
		windowEnd = windowStart + 3
	}

	return ErrMissingEndOfCentralDirectory
}

func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}
