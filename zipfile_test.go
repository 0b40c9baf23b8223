// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile_test

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipfile"
)

// --- Session lifecycle ---

func TestCreate_EmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 22)
	assert.Equal(t, []byte{0x50, 0x4B, 0x05, 0x06}, data[:4])

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 0, reopened.Len())
	for range reopened.Entries() {
		t.Fatal("empty archive yielded an entry")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.zip")

	_, err := zipfile.Open(path, zipfile.ModeRead)
	assert.ErrorIs(t, err, zipfile.ErrUnreadableArchive)

	_, err = zipfile.Open(path, zipfile.ModeUpdate)
	assert.ErrorIs(t, err, zipfile.ErrUnwritableArchive)
}

func TestCreate_TargetExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists.zip")
	require.NoError(t, os.WriteFile(path, []byte("anything"), 0644))

	_, err := zipfile.Open(path, zipfile.ModeCreate)
	assert.ErrorIs(t, err, zipfile.ErrUnwritableArchive)
}

func TestOpen_NoEndRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.zip")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 4096), 0644))

	_, err := zipfile.Open(path, zipfile.ModeRead)
	assert.ErrorIs(t, err, zipfile.ErrMissingEndOfCentralDirectory)
}

func TestOpen_FileTooSmall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.zip")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0644))

	_, err := zipfile.Open(path, zipfile.ModeRead)
	assert.ErrorIs(t, err, zipfile.ErrUnreadableArchive)
}

func TestOpen_ArchiveComments(t *testing.T) {
	comments := []string{
		"",
		"x",
		strings.Repeat("c", 65535),
	}

	for _, comment := range comments {
		t.Run("", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "commented.zip")
			writeStdlibArchive(t, path, map[string]string{"f.txt": "data"}, comment)

			archive, err := zipfile.Open(path, zipfile.ModeRead)
			require.NoError(t, err)
			defer archive.Close()

			assert.Equal(t, comment, archive.Comment())
			assert.Equal(t, 1, archive.Len())
		})
	}
}

// Round-trip: entries added to a fresh archive come back in insertion
// order with identical paths, sizes, and checksums after reopening.
func TestRoundTrip_InsertionOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.zip")

	files := []struct {
		name   string
		data   string
		method zipfile.CompressionMethod
	}{
		{"hello.txt", "Hello World", zipfile.Deflate},
		{"raw.bin", "stored as-is", zipfile.Store},
		{"dir/nested.json", "{}", zipfile.Deflate},
		{"empty.txt", "", zipfile.Store},
	}

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	for _, f := range files {
		require.NoError(t, archive.AddBytes(f.name, []byte(f.data), zipfile.WithCompression(f.method)))
	}
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, len(files), reopened.Len())

	i := 0
	for entry, err := range reopened.Entries() {
		require.NoError(t, err)
		want := files[i]

		assert.Equal(t, want.name, entry.Path())
		assert.Equal(t, int64(len(want.data)), entry.UncompressedSize())
		assert.Equal(t, crc32.ChecksumIEEE([]byte(want.data)), entry.CRC32())
		assert.Equal(t, want.method, entry.CompressionMethod())
		assert.True(t, entry.HasDataDescriptor())

		i++
	}
	require.Equal(t, len(files), i)

	expected := make(map[string]string, len(files))
	for _, f := range files {
		expected[f.name] = f.data
	}
	verifyWithStdlib(t, path, expected)
}

// verifyWithStdlib cross-checks a produced archive against the standard
// library reader to ensure compatibility.
func verifyWithStdlib(t *testing.T, path string, expected map[string]string) {
	t.Helper()

	r, err := zip.OpenReader(path)
	require.NoError(t, err, "archive/zip rejected the produced file")
	defer r.Close()

	require.Equal(t, len(expected), len(r.File))

	for _, f := range r.File {
		want, ok := expected[f.Name]
		require.True(t, ok, "unexpected entry %s", f.Name)

		rc, err := f.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)

		assert.Equal(t, want, string(got), "content mismatch for %s", f.Name)
	}
}

// writeStdlibArchive produces a reference archive with the standard
// library writer.
func writeStdlibArchive(t *testing.T, path string, files map[string]string, comment string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	if comment != "" {
		require.NoError(t, zw.SetComment(comment))
	}

	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			_, err := zw.Create(name)
			require.NoError(t, err)
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
}
