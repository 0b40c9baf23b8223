// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/zipfile"
)

func TestZipDirectory_UnzipArchive_RoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub", "deep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "mid.txt"), []byte("middle"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "deep", "leaf.bin"), []byte("leaf"), 0600))

	archivePath := filepath.Join(t.TempDir(), "walked.zip")
	require.NoError(t, zipfile.ZipDirectory(src, archivePath))

	archive, err := zipfile.Open(archivePath, zipfile.ModeRead)
	require.NoError(t, err)

	var dirs, files int
	for entry, err := range archive.Entries() {
		require.NoError(t, err)
		if entry.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	assert.Equal(t, 2, dirs)
	assert.Equal(t, 3, files)
	require.NoError(t, archive.Close())

	dst := t.TempDir()
	require.NoError(t, zipfile.UnzipArchive(archivePath, dst))

	for _, tc := range []struct {
		rel  string
		want string
	}{
		{"top.txt", "top"},
		{filepath.Join("sub", "mid.txt"), "middle"},
		{filepath.Join("sub", "deep", "leaf.bin"), "leaf"},
	} {
		got, err := os.ReadFile(filepath.Join(dst, tc.rel))
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
	}
}

func TestZipDirectory_TargetExists(t *testing.T) {
	src := t.TempDir()
	target := filepath.Join(t.TempDir(), "exists.zip")
	require.NoError(t, os.WriteFile(target, []byte("occupied"), 0644))

	err := zipfile.ZipDirectory(src, target)
	assert.ErrorIs(t, err, zipfile.ErrUnwritableArchive)
}

// Entries whose paths climb out of the destination are rejected.
func TestUnzipArchive_ZipSlip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "slip.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "../evil.txt"})
	require.NoError(t, err)
	_, err = w.Write([]byte("escape"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dst := filepath.Join(t.TempDir(), "out")
	err = zipfile.UnzipArchive(archivePath, dst)
	assert.ErrorIs(t, err, zipfile.ErrInsecurePath)

	_, statErr := os.Lstat(filepath.Join(filepath.Dir(dst), "evil.txt"))
	assert.True(t, os.IsNotExist(statErr), "escaped file must not exist")
}
