// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"bufio"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"iter"
	"os"
	"time"

	"github.com/lemon4ksan/zipfile/internal"
)

// Entries returns a restartable iterator over the archive's entries in
// central directory order, the canonical order for all enumeration-based
// operations. Each entry is a value snapshot of its headers; a structural
// failure yields a single non-nil error and ends the sequence.
func (a *Archive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		offset := int64(a.eocd.CentralDirectoryOffset)

		for i := range int(a.eocd.TotalEntries) {
			entry, advance, err := a.readEntryAt(offset)
			if err != nil {
				yield(Entry{}, fmt.Errorf("%w: entry %d: %v", ErrUnreadableArchive, i, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
			offset += advance
		}
	}
}

// Entry returns the first entry whose path matches exactly. The format
// does not forbid duplicate paths; the first match in central directory
// order wins.
func (a *Archive) Entry(path string) (Entry, error) {
	for entry, err := range a.Entries() {
		if err != nil {
			return Entry{}, err
		}
		if entry.path == path {
			return entry, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
}

// readEntryAt parses the central directory header at offset, resolves the
// entry's local header and optional data descriptor, and returns the
// number of central directory bytes consumed.
func (a *Archive) readEntryAt(offset int64) (Entry, int64, error) {
	sr := io.NewSectionReader(a.file, offset, a.size-offset)

	central, err := internal.ReadCentralDirectoryHeader(sr)
	if err != nil {
		return Entry{}, 0, err
	}

	entry, err := a.resolveEntry(central)
	if err != nil {
		return Entry{}, 0, err
	}

	return entry, central.TotalLength(), nil
}

// resolveEntry completes an entry from its central directory header by
// reading the local file header and, when bit 3 is set, the data
// descriptor at localHeaderOffset + headerLength + payloadSize.
func (a *Archive) resolveEntry(central internal.CentralDirectoryHeader) (Entry, error) {
	headerOffset := int64(central.LocalHeaderOffset)
	if headerOffset >= a.size {
		return Entry{}, fmt.Errorf("local header offset %d beyond archive end", headerOffset)
	}

	local, err := internal.ReadLocalFileHeader(io.NewSectionReader(a.file, headerOffset, a.size-headerOffset))
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		central: central,
		local:   local,
		path:    decodeText(central.Filename, central.GeneralPurposeBitFlag),
	}
	entry.kind = entryKind(central, entry.path)

	if entry.HasDataDescriptor() {
		descOffset := headerOffset + local.TotalLength() + entry.payloadSize()
		desc, err := internal.ReadDataDescriptor(io.NewSectionReader(a.file, descOffset, a.size-descOffset))
		if err != nil {
			return Entry{}, err
		}
		entry.descriptor = &desc
	}

	return entry, nil
}

// openEntry returns a reader over the entry's decompressed payload.
// Sizes and checksum come from the central directory, which stays
// authoritative when the local header carries zeroed fields.
func (a *Archive) openEntry(e Entry, verify bool) (io.ReadCloser, error) {
	decomp, err := decompressorFor(CompressionMethod(e.central.CompressionMethod))
	if err != nil {
		return nil, err
	}

	payload := io.NewSectionReader(a.file, e.payloadOffset(), int64(e.central.CompressedSize))

	rc, err := decomp.Decompress(bufio.NewReaderSize(payload, a.chunkSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableArchive, err)
	}

	if !verify {
		return rc, nil
	}

	return &checksumReader{
		rc:   rc,
		hash: crc32.NewIEEE(),
		want: e.central.CRC32,
		size: uint64(e.central.UncompressedSize),
	}, nil
}

// Extract streams the entry's payload to dest and returns the number of
// bytes written. The recomputed CRC-32 must equal the recorded one unless
// WithSkipCRC is given. Directory entries materialize as an empty
// directory; symlink entries materialize as a symbolic link whose target
// is the payload.
func (a *Archive) Extract(e Entry, dest string, opts ...ExtractOption) (int64, error) {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	switch e.kind {
	case KindDirectory:
		if err := os.MkdirAll(dest, 0755); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnwritableFile, err)
		}
		return 0, nil

	case KindSymlink:
		target, err := a.readAll(e, !cfg.skipCRC)
		if err != nil {
			return 0, err
		}
		if err := os.Symlink(string(target), dest); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnwritableFile, err)
		}
		return int64(len(target)), nil
	}

	src, err := a.openEntry(e, !cfg.skipCRC)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnwritableFile, err)
	}
	defer dst.Close()

	counter := &countingWriter{dest: dst}
	_, err = io.CopyBuffer(counter, src, make([]byte, a.chunkSize))
	if err != nil {
		return counter.written, classifyReadError(err)
	}

	if err := src.Close(); err != nil {
		return counter.written, err
	}

	// Best-effort restore of mode bits and modification time. Errors are
	// ignored as the backing file system may not support either.
	if perm := e.Mode() & fs.ModePerm; perm != 0 {
		os.Chmod(dest, perm)
	}
	os.Chtimes(dest, time.Now(), e.ModTime())

	a.log().Debug("entry extracted", "path", e.path, "dest", dest, "bytes", counter.written)

	return counter.written, nil
}

// readAll decompresses the entire payload into memory. Used for symlink
// targets, which are bounded by the filename length limits of real file
// systems.
func (a *Archive) readAll(e Entry, verify bool) ([]byte, error) {
	src, err := a.openEntry(e, verify)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, classifyReadError(err)
	}
	if err := src.Close(); err != nil {
		return nil, err
	}
	return data, nil
}

// classifyReadError separates low-level stream failures from corrupt
// payload data: an *fs.PathError comes from the backing file, anything
// else from the decompressor rejecting its input.
func classifyReadError(err error) error {
	if errors.Is(err, ErrUnwritableFile) || errors.Is(err, ErrInvalidCRC32) || errors.Is(err, ErrUnreadableArchive) {
		return err
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidCRC32, err)
}

// ExtractOption configures a single extraction.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	skipCRC bool
}

// WithSkipCRC disables checksum verification for this extraction. Meant
// for fast listings only.
func WithSkipCRC() ExtractOption {
	return func(cfg *extractConfig) {
		cfg.skipCRC = true
	}
}

// checksumReader wraps a payload reader to verify CRC-32 and size while
// reading. Close reports ErrInvalidCRC32 when the recomputed checksum
// does not match the recorded one.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	read uint64
	size uint64
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if n > 0 {
		cr.read += uint64(n)
		if cr.read > cr.size {
			return n, fmt.Errorf("%w: payload exceeds recorded size", ErrInvalidCRC32)
		}
		cr.hash.Write(p[:n])
	}
	return n, err
}

func (cr *checksumReader) Close() error {
	defer cr.rc.Close()

	if cr.read != cr.size {
		return fmt.Errorf("%w: read %d bytes, recorded %d", ErrInvalidCRC32, cr.read, cr.size)
	}

	if got := cr.hash.Sum32(); got != cr.want {
		return fmt.Errorf("%w: got %#08x, want %#08x", ErrInvalidCRC32, got, cr.want)
	}
	return nil
}
