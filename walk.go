// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ZipDirectory creates a new archive at dst from the filesystem subtree
// rooted at src, preserving relative path structure and directory entry
// markers. Failed files are reported as a combined error after the walk
// completes (best effort).
func ZipDirectory(src, dst string, opts ...AddOption) error {
	archive, err := Open(dst, ModeCreate)
	if err != nil {
		return err
	}
	defer archive.Close()

	var errs []error

	walkErr := filepath.WalkDir(src, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if walkPath == src {
			return nil
		}

		relPath, err := filepath.Rel(src, walkPath)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if err := archive.AddFile(relPath, src, opts...); err != nil {
			errs = append(errs, fmt.Errorf("failed to add %s: %w", walkPath, err))
		}
		return nil
	})

	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	return errors.Join(errs...)
}

// UnzipArchive extracts every entry of the archive at src into the
// directory dst, creating parent directories as needed. Extraction
// targets escaping dst are rejected with ErrInsecurePath (Zip Slip
// protection).
func UnzipArchive(src, dst string) error {
	archive, err := Open(src, ModeRead)
	if err != nil {
		return err
	}
	defer archive.Close()

	dst = filepath.Clean(dst)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnwritableFile, err)
	}

	var errs []error

	for entry, err := range archive.Entries() {
		if err != nil {
			return err
		}

		target := filepath.Join(dst, filepath.FromSlash(entry.Path()))
		if !strings.HasPrefix(target, dst+string(os.PathSeparator)) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInsecurePath, entry.Path()))
			continue
		}

		if entry.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			errs = append(errs, fmt.Errorf("create dir for %s: %w", entry.Path(), err))
			continue
		}

		if _, err := archive.Extract(entry, target); err != nil {
			errs = append(errs, fmt.Errorf("failed to extract %s: %w", entry.Path(), err))
		}
	}

	return errors.Join(errs...)
}
