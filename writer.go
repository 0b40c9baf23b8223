// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lemon4ksan/zipfile/internal"
	"github.com/lemon4ksan/zipfile/internal/sys"
)

// AddOption configures a single add operation.
type AddOption func(*addConfig)

type addConfig struct {
	method  CompressionMethod
	mode    fs.FileMode
	modeSet bool
	modTime time.Time
	comment string
	kind    Kind
}

// WithCompression sets the compression method for the new entry.
// The default is Deflate.
func WithCompression(m CompressionMethod) AddOption {
	return func(cfg *addConfig) {
		cfg.method = m
	}
}

// WithPermissions sets the POSIX mode recorded in the entry's external
// attributes. The default is DefaultPermissions; AddFile instead defaults
// to the permission bits of the source file.
func WithPermissions(mode fs.FileMode) AddOption {
	return func(cfg *addConfig) {
		cfg.mode = mode
		cfg.modeSet = true
	}
}

// WithModTime sets the recorded modification time (MS-DOS resolution).
// The default is the time of the add; AddFile instead defaults to the
// modification time of the source file.
func WithModTime(t time.Time) AddOption {
	return func(cfg *addConfig) {
		cfg.modTime = t
	}
}

// WithComment attaches a file comment to the new entry.
func WithComment(comment string) AddOption {
	return func(cfg *addConfig) {
		cfg.comment = comment
	}
}

// Add writes a new entry whose payload is produced by open. The new local
// header and payload overwrite the old central directory, which is then
// rebuilt behind them, so a failure mid-write leaves the archive in an
// undefined state. The in-memory end of central directory record is
// updated only after the on-disk one is written.
func (a *Archive) Add(path string, open func() (io.ReadCloser, error), opts ...AddOption) error {
	cfg := addConfig{
		method:  Deflate,
		mode:    DefaultPermissions,
		modTime: time.Now(),
		kind:    KindFile,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return a.add(path, open, cfg)
}

// AddBytes writes a new entry with an in-memory payload.
func (a *Archive) AddBytes(path string, data []byte, opts ...AddOption) error {
	return a.Add(path, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, opts...)
}

// AddDirectory writes an explicit directory entry. The path is stored
// with a trailing slash and the payload is empty.
func (a *Archive) AddDirectory(path string, opts ...AddOption) error {
	cfg := addConfig{
		method:  Store,
		mode:    DefaultPermissions,
		modTime: time.Now(),
		kind:    KindDirectory,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.method = Store

	if !strings.HasSuffix(path, "/") {
		path += "/"
	}

	return a.add(path, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}, cfg)
}

// AddFile writes a new entry from the filesystem: relPath names the entry
// within the archive and, joined to basePath, locates the source.
// Directories become directory entries, symlinks store their target as
// the payload, and regular files stream their content. Symlinks are not
// followed.
func (a *Archive) AddFile(relPath, basePath string, opts ...AddOption) error {
	source := filepath.Join(basePath, filepath.FromSlash(relPath))

	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	cfg := addConfig{
		method:  Deflate,
		mode:    DefaultPermissions,
		modTime: info.ModTime(),
		kind:    KindFile,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.modeSet {
		cfg.mode = info.Mode() & fs.ModePerm
	}

	switch {
	case info.IsDir():
		cfg.kind = KindDirectory
		cfg.method = Store
		if !strings.HasSuffix(relPath, "/") {
			relPath += "/"
		}
		return a.add(relPath, func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}, cfg)

	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(source)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		cfg.kind = KindSymlink
		cfg.method = Store
		return a.add(relPath, func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(target)), nil
		}, cfg)
	}

	return a.add(relPath, func() (io.ReadCloser, error) {
		return os.Open(source)
	}, cfg)
}

// add runs the add transaction: placeholder local header, streamed
// payload, data descriptor, rebuilt central directory, fresh end record,
// truncation.
func (a *Archive) add(path string, open func() (io.ReadCloser, error), cfg addConfig) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: session is read-only", ErrUnwritableArchive)
	}

	rawName, utf8Flagged, err := encodeEntryPath(path)
	if err != nil {
		return err
	}
	if len(cfg.comment) > math.MaxUint16 {
		return fmt.Errorf("%w: comment too long (%d bytes)", ErrUnwritableArchive, len(cfg.comment))
	}
	if a.eocd.TotalEntries == math.MaxUint16 {
		return fmt.Errorf("%w: entry count limit reached", ErrUnwritableArchive)
	}
	if _, err := compressorFor(cfg.method); err != nil {
		return err
	}

	// The headers are re-parsed from disk before any byte is overwritten.
	existing, err := a.readCentralDirectoryHeaders()
	if err != nil {
		return err
	}

	start := int64(a.eocd.CentralDirectoryOffset)
	dosDate, dosTime := timeToMsDos(cfg.modTime)

	flags := uint16(dataDescriptorFlag)
	if utf8Flagged {
		flags |= utf8Flag
	}

	local := internal.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  flags,
		CompressionMethod:      uint16(cfg.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		FilenameLength:         uint16(len(rawName)),
		Filename:               rawName,
	}

	w := &countingWriter{dest: io.NewOffsetWriter(a.file, start)}

	if _, err := w.Write(local.Encode()); err != nil {
		return err
	}

	src, err := open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	in, out, crc, err := encodePayload(w, src, cfg.method, a.chunkSize)
	if err != nil {
		src.Close()
		if errors.Is(err, ErrUnwritableFile) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	if in > math.MaxUint32 || out > math.MaxUint32 {
		return fmt.Errorf("%w: entry exceeds 4 GiB", ErrUnwritableArchive)
	}

	descriptor := internal.DataDescriptor{
		CRC32:            crc,
		CompressedSize:   uint32(out),
		UncompressedSize: uint32(in),
	}
	if _, err := w.Write(descriptor.Encode()); err != nil {
		return err
	}

	central := internal.CentralDirectoryHeader{
		VersionMadeBy:          uint16(sys.HostSystemUNIX)<<8 | 20,
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  flags,
		CompressionMethod:      uint16(cfg.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc,
		CompressedSize:         uint32(out),
		UncompressedSize:       uint32(in),
		FilenameLength:         uint16(len(rawName)),
		FileCommentLength:      uint16(len(cfg.comment)),
		ExternalFileAttributes: unixExternalAttributes(cfg.kind, cfg.mode),
		LocalHeaderOffset:      uint32(start),
		Filename:               rawName,
		Comment:                []byte(cfg.comment),
	}

	if err := a.commitCentralDirectory(append(existing, central), start+w.written); err != nil {
		return err
	}

	a.log().Debug("entry added",
		"path", path, "method", cfg.method.String(), "in", in, "out", out, "crc", crc)

	return nil
}

// Remove deletes the entry from the archive by shifting every byte
// between the entry's end and the central directory leftward over the
// entry's span, then rebuilding the central directory with adjusted
// offsets. Like Add, the operation is not atomic across crashes.
func (a *Archive) Remove(e Entry) error {
	if a.mode == ModeRead {
		return fmt.Errorf("%w: session is read-only", ErrUnwritableArchive)
	}

	headers, err := a.readCentralDirectoryHeaders()
	if err != nil {
		return err
	}

	removed := -1
	for i, h := range headers {
		if h.LocalHeaderOffset == e.central.LocalHeaderOffset && bytes.Equal(h.Filename, e.central.Filename) {
			removed = i
			break
		}
	}
	if removed == -1 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, e.path)
	}

	start, end := e.span()
	cdOffset := int64(a.eocd.CentralDirectoryOffset)
	if end > cdOffset {
		return fmt.Errorf("%w: entry span overlaps central directory", ErrUnreadableArchive)
	}
	shift := end - start

	// Close the gap in bounded chunks.
	buf := make([]byte, a.chunkSize)
	for pos := end; pos < cdOffset; {
		n := int(min(int64(len(buf)), cdOffset-pos))

		if _, err := a.file.ReadAt(buf[:n], pos); err != nil {
			return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
		}
		if _, err := a.file.WriteAt(buf[:n], pos-shift); err != nil {
			return fmt.Errorf("%w: %v", ErrUnwritableFile, err)
		}

		pos += int64(n)
	}

	kept := make([]internal.CentralDirectoryHeader, 0, len(headers)-1)
	for i, h := range headers {
		if i == removed {
			continue
		}
		if int64(h.LocalHeaderOffset) >= end {
			h.LocalHeaderOffset -= uint32(shift)
		}
		kept = append(kept, h)
	}

	if err := a.commitCentralDirectory(kept, cdOffset-shift); err != nil {
		return err
	}

	a.log().Debug("entry removed", "path", e.path, "reclaimed", shift)

	return nil
}

// readCentralDirectoryHeaders re-parses the full central directory from
// disk in physical order.
func (a *Archive) readCentralDirectoryHeaders() ([]internal.CentralDirectoryHeader, error) {
	headers := make([]internal.CentralDirectoryHeader, 0, a.eocd.TotalEntries)

	sr := io.NewSectionReader(a.file,
		int64(a.eocd.CentralDirectoryOffset), int64(a.eocd.CentralDirectorySize))

	for range int(a.eocd.TotalEntries) {
		h, err := internal.ReadCentralDirectoryHeader(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableArchive, err)
		}
		headers = append(headers, h)
	}

	return headers, nil
}

// commitCentralDirectory writes the central directory at cdOffset,
// follows it with a fresh end record preserving the archive comment, and
// truncates the file. The session's in-memory record is replaced only
// after every on-disk write has succeeded.
func (a *Archive) commitCentralDirectory(headers []internal.CentralDirectoryHeader, cdOffset int64) error {
	if cdOffset > math.MaxUint32 {
		return fmt.Errorf("%w: %d", ErrInvalidCentralDirectoryOffset, cdOffset)
	}

	w := &countingWriter{dest: io.NewOffsetWriter(a.file, cdOffset)}

	for _, h := range headers {
		if _, err := w.Write(h.Encode()); err != nil {
			return err
		}
	}
	cdSize := w.written

	eocd := internal.EndOfCentralDirectory{
		EntriesOnDisk:          uint16(len(headers)),
		TotalEntries:           uint16(len(headers)),
		CentralDirectorySize:   uint32(cdSize),
		CentralDirectoryOffset: uint32(cdOffset),
		CommentLength:          a.eocd.CommentLength,
		Comment:                a.eocd.Comment,
	}
	if _, err := w.Write(eocd.Encode()); err != nil {
		return err
	}

	end := cdOffset + w.written
	if err := a.file.Truncate(end); err != nil {
		return fmt.Errorf("%w: truncate: %v", ErrUnwritableArchive, err)
	}

	a.eocd = eocd
	a.eocdOffset = cdOffset + cdSize
	a.size = end

	return nil
}

// unixExternalAttributes builds external file attributes for entries made
// by this library: POSIX mode bits in the high 16 bits, typed by kind.
func unixExternalAttributes(kind Kind, perm fs.FileMode) uint32 {
	mode := uint32(perm & fs.ModePerm)
	switch kind {
	case KindDirectory:
		mode |= sys.S_IFDIR
	case KindSymlink:
		mode |= sys.S_IFLNK
	default:
		mode |= sys.S_IFREG
	}
	return mode << 16
}
