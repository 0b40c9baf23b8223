// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal implements the on-disk ZIP structure codec: fixed-size
// little-endian records and their trailing variable-length regions.
package internal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Each record type is identified by a header signature. Signature values
// begin with the two byte constant marker of 0x4b50, representing the
// characters "PK".
const (
	LocalFileHeaderSignature  uint32 = 0x04034b50
	DataDescriptorSignature   uint32 = 0x08074b50
	CentralDirectorySignature uint32 = 0x02014b50
	EndOfCentralDirSignature  uint32 = 0x06054b50
)

// Fixed prefix sizes, signature included. Variable-length regions
// (filename, extra field, comments) follow the fixed prefix.
const (
	LocalFileHeaderLen  = 30
	DataDescriptorLen   = 16
	CentralDirectoryLen = 46
	EndOfCentralDirLen  = 22
)

// LocalFileHeader precedes each entry's payload and duplicates part of the
// central directory metadata. When general purpose bit 3 is set, CRC32 and
// both sizes are zero and the authoritative values follow the payload as a
// DataDescriptor.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               []byte
	ExtraField             []byte
}

// ReadLocalFileHeader reads and validates a local file header, including
// its trailing filename and extra field regions.
func ReadLocalFileHeader(src io.Reader) (LocalFileHeader, error) {
	var buf [LocalFileHeaderLen]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return LocalFileHeader{}, fmt.Errorf("read local file header: %w", err)
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != LocalFileHeaderSignature {
		return LocalFileHeader{}, fmt.Errorf("local file header signature mismatch: %#08x", sig)
	}

	h := LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}

	var err error
	if h.Filename, err = readRegion(src, h.FilenameLength, "filename"); err != nil {
		return LocalFileHeader{}, err
	}
	if h.ExtraField, err = readRegion(src, h.ExtraFieldLength, "extra field"); err != nil {
		return LocalFileHeader{}, err
	}

	return h, nil
}

// Encode emits the header as a byte buffer, trailing regions included.
func (h LocalFileHeader) Encode() []byte {
	buf := make([]byte, LocalFileHeaderLen+int(h.FilenameLength)+int(h.ExtraFieldLength))

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[28:30], h.ExtraFieldLength)

	copy(buf[LocalFileHeaderLen:], h.Filename)
	copy(buf[LocalFileHeaderLen+int(h.FilenameLength):], h.ExtraField)

	return buf
}

// TotalLength is the on-disk length of the header with its trailing regions.
func (h LocalFileHeader) TotalLength() int64 {
	return LocalFileHeaderLen + int64(h.FilenameLength) + int64(h.ExtraFieldLength)
}

// DataDescriptor trails an entry's payload when the local header was
// written before the sizes and checksum were known.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// ReadDataDescriptor reads and validates a 16-byte data descriptor.
func ReadDataDescriptor(src io.Reader) (DataDescriptor, error) {
	var buf [DataDescriptorLen]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return DataDescriptor{}, fmt.Errorf("read data descriptor: %w", err)
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != DataDescriptorSignature {
		return DataDescriptor{}, fmt.Errorf("data descriptor signature mismatch: %#08x", sig)
	}

	return DataDescriptor{
		CRC32:            binary.LittleEndian.Uint32(buf[4:8]),
		CompressedSize:   binary.LittleEndian.Uint32(buf[8:12]),
		UncompressedSize: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

func (d DataDescriptor) Encode() []byte {
	buf := make([]byte, DataDescriptorLen)

	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], d.CRC32)
	binary.LittleEndian.PutUint32(buf[8:12], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[12:16], d.UncompressedSize)

	return buf
}

// CentralDirectoryHeader is one record of the central directory. It is the
// authoritative source of entry metadata; local header fields may be
// zeroed when bit 3 of the general purpose flag is set.
type CentralDirectoryHeader struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               []byte
	ExtraField             []byte
	Comment                []byte
}

// ReadCentralDirectoryHeader reads and validates a central directory
// header. Trailing regions are read in declared order: filename, extra
// field, file comment.
func ReadCentralDirectoryHeader(src io.Reader) (CentralDirectoryHeader, error) {
	var buf [CentralDirectoryLen]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectoryHeader{}, fmt.Errorf("read central directory header: %w", err)
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != CentralDirectorySignature {
		return CentralDirectoryHeader{}, fmt.Errorf("central directory signature mismatch: %#08x", sig)
	}

	h := CentralDirectoryHeader{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[30:32]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[42:46]),
	}

	var err error
	if h.Filename, err = readRegion(src, h.FilenameLength, "filename"); err != nil {
		return CentralDirectoryHeader{}, err
	}
	if h.ExtraField, err = readRegion(src, h.ExtraFieldLength, "extra field"); err != nil {
		return CentralDirectoryHeader{}, err
	}
	if h.Comment, err = readRegion(src, h.FileCommentLength, "file comment"); err != nil {
		return CentralDirectoryHeader{}, err
	}

	return h, nil
}

func (h CentralDirectoryHeader) Encode() []byte {
	buf := make([]byte, CentralDirectoryLen+int(h.FilenameLength)+int(h.ExtraFieldLength)+int(h.FileCommentLength))

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], h.FilenameLength)
	binary.LittleEndian.PutUint16(buf[30:32], h.ExtraFieldLength)
	binary.LittleEndian.PutUint16(buf[32:34], h.FileCommentLength)
	binary.LittleEndian.PutUint16(buf[34:36], h.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], h.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], h.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], h.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], h.Filename)
	offset += copy(buf[offset:], h.ExtraField)
	copy(buf[offset:], h.Comment)

	return buf
}

// TotalLength is the on-disk length of the header with its trailing regions.
func (h CentralDirectoryHeader) TotalLength() int64 {
	return CentralDirectoryLen + int64(h.FilenameLength) + int64(h.ExtraFieldLength) + int64(h.FileCommentLength)
}

// EndOfCentralDirectory anchors the archive: it is the last record in the
// file, optionally followed only by its own comment bytes.
type EndOfCentralDirectory struct {
	DiskNumber             uint16
	CentralDirectoryDisk   uint16
	EntriesOnDisk          uint16
	TotalEntries           uint16
	CentralDirectorySize   uint32
	CentralDirectoryOffset uint32
	CommentLength          uint16
	Comment                []byte
}

// ReadEndOfCentralDirectory reads and validates an end of central
// directory record, comment tail included.
func ReadEndOfCentralDirectory(src io.Reader) (EndOfCentralDirectory, error) {
	var buf [EndOfCentralDirLen]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("read end of central directory: %w", err)
	}

	if sig := binary.LittleEndian.Uint32(buf[0:4]); sig != EndOfCentralDirSignature {
		return EndOfCentralDirectory{}, fmt.Errorf("end of central directory signature mismatch: %#08x", sig)
	}

	e := EndOfCentralDirectory{
		DiskNumber:             binary.LittleEndian.Uint16(buf[4:6]),
		CentralDirectoryDisk:   binary.LittleEndian.Uint16(buf[6:8]),
		EntriesOnDisk:          binary.LittleEndian.Uint16(buf[8:10]),
		TotalEntries:           binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirectorySize:   binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirectoryOffset: binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:          binary.LittleEndian.Uint16(buf[20:22]),
	}

	var err error
	if e.Comment, err = readRegion(src, e.CommentLength, "zip comment"); err != nil {
		return EndOfCentralDirectory{}, err
	}

	return e, nil
}

func (e EndOfCentralDirectory) Encode() []byte {
	buf := make([]byte, EndOfCentralDirLen+int(e.CommentLength))

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], e.DiskNumber)
	binary.LittleEndian.PutUint16(buf[6:8], e.CentralDirectoryDisk)
	binary.LittleEndian.PutUint16(buf[8:10], e.EntriesOnDisk)
	binary.LittleEndian.PutUint16(buf[10:12], e.TotalEntries)
	binary.LittleEndian.PutUint32(buf[12:16], e.CentralDirectorySize)
	binary.LittleEndian.PutUint32(buf[16:20], e.CentralDirectoryOffset)
	binary.LittleEndian.PutUint16(buf[20:22], e.CommentLength)

	copy(buf[EndOfCentralDirLen:], e.Comment)

	return buf
}

// readRegion fetches one trailing variable-length region.
func readRegion(src io.Reader, length uint16, what string) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	region := make([]byte, length)
	if _, err := io.ReadFull(src, region); err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return region, nil
}
