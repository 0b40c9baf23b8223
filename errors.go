package zipfile

import "errors"

var (
	// ErrUnreadableArchive is returned when an archive cannot be opened for
	// reading or its structure cannot be parsed.
	ErrUnreadableArchive = errors.New("zipfile: unreadable archive")

	// ErrUnwritableArchive is returned when a mutation is attempted on a
	// read-only session, the target file is not writable, or a create
	// target already exists.
	ErrUnwritableArchive = errors.New("zipfile: unwritable archive")

	// ErrInvalidEntryPath is returned when an entry path is empty or cannot
	// be encoded in either UTF-8 or CP437.
	ErrInvalidEntryPath = errors.New("zipfile: invalid entry path")

	// ErrInvalidCompressionMethod is returned when an entry uses a
	// compression method other than store or Deflate.
	ErrInvalidCompressionMethod = errors.New("zipfile: invalid compression method")

	// ErrInvalidCentralDirectoryOffset is returned when a write would push
	// the start of the central directory beyond 2^32 - 1.
	ErrInvalidCentralDirectoryOffset = errors.New("zipfile: invalid start of central directory offset")

	// ErrMissingEndOfCentralDirectory is returned when the backward scan
	// exhausts its bound without finding the end of central directory
	// signature.
	ErrMissingEndOfCentralDirectory = errors.New("zipfile: missing end of central directory record")

	// ErrInvalidCRC32 is returned when the checksum recomputed over
	// extracted bytes does not match the recorded value.
	ErrInvalidCRC32 = errors.New("zipfile: crc32 mismatch")

	// ErrEntryNotFound is returned when no entry matches the requested path.
	ErrEntryNotFound = errors.New("zipfile: entry not found")

	// ErrInsecurePath is returned when an extraction target escapes the
	// destination directory (Zip Slip).
	ErrInsecurePath = errors.New("zipfile: insecure file path")

	// ErrUnreadableFile is returned on a low-level read failure of a
	// payload chunk.
	ErrUnreadableFile = errors.New("zipfile: unreadable file")

	// ErrUnwritableFile is returned on a low-level write failure of a
	// payload chunk.
	ErrUnwritableFile = errors.New("zipfile: unwritable file")
)
