// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an
// entry's payload.
type CompressionMethod uint16

// Supported compression methods according to the ZIP specification.
const (
	Store   CompressionMethod = 0 // No compression - payload stored as-is
	Deflate CompressionMethod = 8 // DEFLATE compression (RFC 1951)
)

func (m CompressionMethod) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	}
	return fmt.Sprintf("method(%d)", uint16(m))
}

// Compressor transforms raw data into archive payload bytes.
type Compressor interface {
	// Compress reads from src in chunks of len(buf) and writes payload
	// bytes to dest. Returns the number of uncompressed bytes read.
	Compress(dest io.Writer, src io.Reader, buf []byte) (int64, error)
}

// Decompressor transforms archive payload bytes back into raw data.
type Decompressor interface {
	// Decompress returns a stream of uncompressed data.
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// StoredCompressor implements the store method (no compression).
type StoredCompressor struct{}

func (StoredCompressor) Compress(dest io.Writer, src io.Reader, buf []byte) (int64, error) {
	return io.CopyBuffer(dest, src, buf)
}

// DeflateCompressor implements DEFLATE compression with pooled writers.
// The zero value compresses at the default level and is restartable per
// call; no state is shared between entries.
type DeflateCompressor struct {
	pool sync.Pool
}

func (d *DeflateCompressor) Compress(dest io.Writer, src io.Reader, buf []byte) (int64, error) {
	w, _ := d.pool.Get().(*flate.Writer)
	if w == nil {
		var err error
		if w, err = flate.NewWriter(io.Discard, flate.DefaultCompression); err != nil {
			return 0, err
		}
	}
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.CopyBuffer(w, src, buf)
	if err != nil {
		return n, err
	}

	return n, w.Close()
}

// StoredDecompressor implements the store method (no compression).
type StoredDecompressor struct{}

func (StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the Deflate method.
type DeflateDecompressor struct{}

func (DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

var deflateCompressor = &DeflateCompressor{}

func compressorFor(m CompressionMethod) (Compressor, error) {
	switch m {
	case Store:
		return StoredCompressor{}, nil
	case Deflate:
		return deflateCompressor, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidCompressionMethod, m)
}

func decompressorFor(m CompressionMethod) (Decompressor, error) {
	switch m {
	case Store:
		return StoredDecompressor{}, nil
	case Deflate:
		return DeflateDecompressor{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrInvalidCompressionMethod, m)
}

// encodePayload streams src through the method's compressor into dest in
// chunkSize pieces, maintaining a running CRC-32 over the uncompressed
// bytes. Returns bytes read, bytes written, and the final checksum.
func encodePayload(dest io.Writer, src io.Reader, method CompressionMethod, chunkSize int) (in, out int64, crc uint32, err error) {
	comp, err := compressorFor(method)
	if err != nil {
		return 0, 0, 0, err
	}

	counter := &countingWriter{dest: dest}
	hasher := crc32.NewIEEE()

	in, err = comp.Compress(counter, io.TeeReader(src, hasher), make([]byte, chunkSize))
	if err != nil {
		return in, counter.written, 0, err
	}

	return in, counter.written, hasher.Sum32(), nil
}

// decodePayload streams src through the method's decompressor into dest
// in chunkSize pieces, maintaining a running CRC-32 over the uncompressed
// bytes. Returns bytes written and the final checksum.
func decodePayload(dest io.Writer, src io.Reader, method CompressionMethod, chunkSize int) (out int64, crc uint32, err error) {
	decomp, err := decompressorFor(method)
	if err != nil {
		return 0, 0, err
	}

	rc, err := decomp.Decompress(src)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	hasher := crc32.NewIEEE()

	out, err = io.CopyBuffer(io.MultiWriter(dest, hasher), rc, make([]byte, chunkSize))
	if err != nil {
		return out, 0, err
	}

	return out, hasher.Sum32(), nil
}
