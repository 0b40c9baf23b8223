package zipfile

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*zipFS)(nil)
	_ fs.StatFS    = (*zipFS)(nil)
	_ fs.ReadDirFS = (*zipFS)(nil)
)

// FS returns a read-only filesystem view of the archive. The view
// iterates the central directory on demand, so it observes mutations made
// through the same session.
func (a *Archive) FS() fs.FS {
	return &zipFS{a: a}
}

type zipFS struct {
	a *Archive
}

// Open implements fs.FS.
func (zfs *zipFS) Open(name string) (fs.File, error) {
	entry, ok, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if !ok || entry.IsDir() {
		return &fsDir{name: name, entry: entry, explicit: ok, a: zfs.a}, nil
	}

	rc, err := zfs.a.openEntry(entry, true)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	return &fsFile{entry: entry, rc: rc}, nil
}

// Stat implements fs.StatFS.
func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	entry, ok, err := zfs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if !ok {
		return syntheticDirInfo(name), nil
	}
	return fileInfoAdapter{entry}, nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := zfs.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// lookup resolves a filesystem name to an archive entry. The root and
// implicit directories (paths that exist only as prefixes of deeper
// entries) resolve with ok=false.
func (zfs *zipFS) lookup(name string) (Entry, bool, error) {
	if !fs.ValidPath(name) {
		return Entry{}, false, fs.ErrInvalid
	}

	if name == "." {
		return Entry{}, false, nil
	}

	implicit := false
	for entry, err := range zfs.a.Entries() {
		if err != nil {
			return Entry{}, false, err
		}
		if entry.path == name || entry.path == name+"/" {
			return entry, true, nil
		}
		if strings.HasPrefix(entry.path, name+"/") {
			implicit = true
		}
	}

	if implicit {
		return Entry{}, false, nil
	}
	return Entry{}, false, fs.ErrNotExist
}

// fsFile wraps a regular entry's payload reader to satisfy fs.File.
type fsFile struct {
	entry Entry
	rc    io.ReadCloser
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfoAdapter{f.entry}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir represents an explicit, implicit, or root directory.
type fsDir struct {
	name     string
	entry    Entry
	explicit bool
	a        *Archive
}

func (d *fsDir) Stat() (fs.FileInfo, error) {
	if d.explicit {
		return fileInfoAdapter{d.entry}, nil
	}
	return syntheticDirInfo(d.name), nil
}

func (d *fsDir) Close() error { return nil }

func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

// ReadDir lists the directory's immediate children from the entry list.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	prefix := d.name + "/"
	if d.name == "." {
		prefix = ""
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for entry, err := range d.a.Entries() {
		if err != nil {
			return nil, err
		}

		name := entry.path
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		rel := strings.TrimSuffix(strings.TrimPrefix(name, prefix), "/")
		if rel == "" {
			continue
		}

		childName, _, nested := strings.Cut(rel, "/")
		if seen[childName] {
			continue
		}
		seen[childName] = true

		isDir := nested || entry.IsDir()
		entries = append(entries, fsDirEntryAdapter{
			name:  childName,
			isDir: isDir,
			info:  fileInfoAdapter{entry},
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	if n <= 0 {
		return entries, nil
	}
	if len(entries) <= n {
		return entries, io.EOF
	}
	return entries[:n], nil
}

type fileInfoAdapter struct{ e Entry }

func (i fileInfoAdapter) Name() string       { return path.Base(strings.TrimSuffix(i.e.path, "/")) }
func (i fileInfoAdapter) Size() int64        { return i.e.UncompressedSize() }
func (i fileInfoAdapter) Mode() fs.FileMode  { return i.e.Mode() }
func (i fileInfoAdapter) ModTime() time.Time { return i.e.ModTime() }
func (i fileInfoAdapter) IsDir() bool        { return i.e.IsDir() }
func (i fileInfoAdapter) Sys() interface{}   { return nil }

type syntheticDirInfo string

func (s syntheticDirInfo) Name() string       { return path.Base(string(s)) }
func (s syntheticDirInfo) Size() int64        { return 0 }
func (s syntheticDirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0755 }
func (s syntheticDirInfo) ModTime() time.Time { return time.Time{} }
func (s syntheticDirInfo) IsDir() bool        { return true }
func (s syntheticDirInfo) Sys() interface{}   { return nil }

type fsDirEntryAdapter struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntryAdapter) Name() string { return e.name }
func (e fsDirEntryAdapter) IsDir() bool  { return e.isDir }
func (e fsDirEntryAdapter) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return e.info.Mode().Type()
}
func (e fsDirEntryAdapter) Info() (fs.FileInfo, error) { return e.info, nil }
