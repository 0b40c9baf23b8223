// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipfile"
)

func TestAdd_SingleFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.AddBytes("hello.txt", []byte("hi"), zipfile.WithCompression(zipfile.Store)))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Entry("hello.txt")
	require.NoError(t, err)

	assert.Equal(t, int64(2), entry.UncompressedSize())
	assert.Equal(t, int64(2), entry.CompressedSize())
	assert.Equal(t, uint32(0xD8932AAC), entry.CRC32())
	assert.Equal(t, zipfile.Store, entry.CompressionMethod())
	assert.Equal(t, zipfile.KindFile, entry.Kind())

	dest := filepath.Join(t.TempDir(), "hello.txt")
	n, err := reopened.Extract(entry, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestAdd_DeflateLargePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.zip")
	payload := make([]byte, 1<<20) // 1 MiB of zeros

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.AddBytes("a.bin", payload, zipfile.WithCompression(zipfile.Deflate)))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Entry("a.bin")
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), entry.UncompressedSize())
	assert.Less(t, entry.CompressedSize(), entry.UncompressedSize()/100,
		"deflate should collapse a zero-filled payload")

	dest := filepath.Join(t.TempDir(), "a.bin")
	n, err := reopened.Extract(entry, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestRemove_MiddleEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remove.zip")

	contents := map[string]string{
		"a": "alpha alpha alpha",
		"b": "bravo bravo bravo bravo",
		"c": "charlie",
	}

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, archive.AddBytes(name, []byte(contents[name]), zipfile.WithCompression(zipfile.Store)))
	}
	require.NoError(t, archive.Close())

	before, err := os.Stat(path)
	require.NoError(t, err)

	archive, err = zipfile.Open(path, zipfile.ModeUpdate)
	require.NoError(t, err)

	b, err := archive.Entry("b")
	require.NoError(t, err)
	require.NoError(t, archive.Remove(b))

	_, err = archive.Entry("b")
	assert.ErrorIs(t, err, zipfile.ErrEntryNotFound)

	// Removing a stale snapshot again fails cleanly.
	assert.ErrorIs(t, archive.Remove(b), zipfile.ErrEntryNotFound)

	var paths []string
	for entry, err := range archive.Entries() {
		require.NoError(t, err)
		paths = append(paths, entry.Path())

		dest := filepath.Join(t.TempDir(), entry.Path())
		_, err = archive.Extract(entry, dest)
		require.NoError(t, err)

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, contents[entry.Path()], string(got))
	}
	assert.Equal(t, []string{"a", "c"}, paths)

	require.NoError(t, archive.Close())

	after, err := os.Stat(path)
	require.NoError(t, err)

	// At least the local header, payload, and central directory record of
	// "b" must be reclaimed.
	reclaimed := before.Size() - after.Size()
	assert.GreaterOrEqual(t, reclaimed, int64(30+len(contents["b"])+46))

	verifyWithStdlib(t, path, map[string]string{"a": contents["a"], "c": contents["c"]})
}

func TestMutate_ReadOnlySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.zip")
	writeStdlibArchive(t, path, map[string]string{"f": "data"}, "")

	archive, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer archive.Close()

	err = archive.AddBytes("new", []byte("x"))
	assert.ErrorIs(t, err, zipfile.ErrUnwritableArchive)

	entry, err := archive.Entry("f")
	require.NoError(t, err)
	assert.ErrorIs(t, archive.Remove(entry), zipfile.ErrUnwritableArchive)
}

func TestAdd_InvalidEntryPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paths.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	defer archive.Close()

	assert.ErrorIs(t, archive.AddBytes("", []byte("x")), zipfile.ErrInvalidEntryPath)
	assert.ErrorIs(t, archive.AddBytes(string([]byte{0xFF, 0xFE}), []byte("x")), zipfile.ErrInvalidEntryPath)
}

func TestAdd_InvalidCompressionMethod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "method.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	defer archive.Close()

	err = archive.AddBytes("f", []byte("x"), zipfile.WithCompression(zipfile.CompressionMethod(12)))
	assert.ErrorIs(t, err, zipfile.ErrInvalidCompressionMethod)
}

func TestAdd_NonASCIIPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utf8.zip")
	name := "папка/файл.txt"

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.AddBytes(name, []byte("привет")))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Entry(name)
	require.NoError(t, err)
	assert.Equal(t, name, entry.Path())

	verifyWithStdlib(t, path, map[string]string{name: "привет"})
}

func TestAddDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirs.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.AddDirectory("docs"))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Entry("docs/")
	require.NoError(t, err)
	assert.Equal(t, zipfile.KindDirectory, entry.Kind())
	assert.True(t, entry.IsDir())
	assert.Equal(t, int64(0), entry.UncompressedSize())

	dest := filepath.Join(t.TempDir(), "docs")
	_, err = reopened.Extract(entry, dest)
	require.NoError(t, err)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAdd_AppendToExistingArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.zip")
	writeStdlibArchive(t, path, map[string]string{
		"old1.txt": "first",
		"old2.txt": "second",
	}, "keep this comment")

	archive, err := zipfile.Open(path, zipfile.ModeUpdate)
	require.NoError(t, err)
	require.NoError(t, archive.AddBytes("new.txt", []byte("third")))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Len())
	assert.Equal(t, "keep this comment", reopened.Comment())

	verifyWithStdlib(t, path, map[string]string{
		"old1.txt": "first",
		"old2.txt": "second",
		"new.txt":  "third",
	})
}

func TestAdd_FromProviderFunc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provider.zip")

	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	err = archive.Add("streamed.txt", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("from a provider"))), nil
	})
	require.NoError(t, err)
	require.NoError(t, archive.Close())

	verifyWithStdlib(t, path, map[string]string{"streamed.txt": "from a provider"})
}

func TestAddFile_SymlinkEntry(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "target.txt"), []byte("t"), 0644))
	require.NoError(t, os.Symlink("target.txt", filepath.Join(base, "link")))

	path := filepath.Join(t.TempDir(), "links.zip")
	archive, err := zipfile.Open(path, zipfile.ModeCreate)
	require.NoError(t, err)
	require.NoError(t, archive.AddFile("link", base))
	require.NoError(t, archive.Close())

	reopened, err := zipfile.Open(path, zipfile.ModeRead)
	require.NoError(t, err)
	defer reopened.Close()

	entry, err := reopened.Entry("link")
	require.NoError(t, err)
	assert.Equal(t, zipfile.KindSymlink, entry.Kind())

	dest := filepath.Join(t.TempDir(), "link")
	_, err = reopened.Extract(entry, dest)
	require.NoError(t, err)

	target, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, "target.txt", target)
}
