// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipfile

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/lemon4ksan/zipfile/internal"
)

// PreviewFile is a leaf of the preview tree.
type PreviewFile struct {
	Path string
	Size int64
}

// PreviewFolder is a node of the preview tree. Folders own their
// children; the tree contains no cycles.
type PreviewFolder struct {
	Path    string
	Size    int64
	Files   []PreviewFile
	Folders []*PreviewFolder
}

// PreviewTree is the nested folder/file reconstruction of a flat entry
// list. Files names top-level files that have no enclosing folder; they
// are reported here rather than dropped.
type PreviewTree struct {
	Folders []*PreviewFolder
	Files   []PreviewFile
}

// previewItem is one element of the lenient scan feeding the builder.
type previewItem struct {
	path string
	size int64
	dir  bool
}

// Preview reconstructs the archive's folder hierarchy from the flat entry
// list. The scan is lenient: an entry whose local structures fail to
// parse is skipped rather than failing the whole preview.
func (a *Archive) Preview() (*PreviewTree, error) {
	items, err := a.scanPreviewItems()
	if err != nil {
		return nil, err
	}
	return buildPreviewTree(items), nil
}

// scanPreviewItems walks the central directory once, yielding one item
// per readable entry. A central directory parse failure terminates the
// scan; a local header failure skips only that entry.
func (a *Archive) scanPreviewItems() ([]previewItem, error) {
	items := make([]previewItem, 0, a.eocd.TotalEntries)
	offset := int64(a.eocd.CentralDirectoryOffset)

	for i := range int(a.eocd.TotalEntries) {
		sr := io.NewSectionReader(a.file, offset, a.size-offset)

		central, err := internal.ReadCentralDirectoryHeader(sr)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrUnreadableArchive, i, err)
		}
		offset += central.TotalLength()

		if _, err := a.resolveEntry(central); err != nil {
			a.log().Debug("preview skipped entry", "index", i, "err", err)
			continue
		}

		path := decodeText(central.Filename, central.GeneralPurposeBitFlag)
		items = append(items, previewItem{
			path: path,
			size: int64(central.UncompressedSize),
			dir:  entryKind(central, path) == KindDirectory,
		})
	}

	return items, nil
}

// buildPreviewTree buckets items by depth, attaches files to the folder
// at the same level whose path prefixes them, then links each folder
// level to the one above. Ties break by first match in iteration order.
func buildPreviewTree(items []previewItem) *PreviewTree {
	tree := &PreviewTree{}

	// Depth counts path separators of the stored path, so a folder
	// "docs/" and its files "docs/x" land on the same level.
	folders := make(map[int][]*PreviewFolder)
	stored := make(map[*PreviewFolder]string)

	for _, item := range items {
		if !item.dir {
			continue
		}
		depth := strings.Count(item.path, "/")
		folder := &PreviewFolder{
			Path: strings.TrimSuffix(item.path, "/"),
			Size: item.size,
		}
		folders[depth] = append(folders[depth], folder)
		stored[folder] = item.path
	}

	for _, item := range items {
		if item.dir {
			continue
		}
		depth := strings.Count(item.path, "/")
		file := PreviewFile{Path: item.path, Size: item.size}

		if depth == 0 {
			tree.Files = append(tree.Files, file)
			continue
		}

		for _, folder := range folders[depth] {
			if strings.HasPrefix(item.path, stored[folder]) {
				folder.Files = append(folder.Files, file)
				break
			}
		}
	}

	levels := make([]int, 0, len(folders))
	for depth := range folders {
		levels = append(levels, depth)
	}
	slices.Sort(levels)

	for i := len(levels) - 1; i > 0; i-- {
		depth, parentDepth := levels[i], levels[i-1]
		if parentDepth != depth-1 {
			continue
		}
		for _, child := range folders[depth] {
			for _, parent := range folders[parentDepth] {
				if strings.HasPrefix(stored[child], stored[parent]) {
					parent.Folders = append(parent.Folders, child)
					break
				}
			}
		}
	}

	if len(levels) > 0 {
		tree.Folders = folders[levels[0]]
	}

	return tree
}
