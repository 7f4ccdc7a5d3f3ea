// Package testutil provides in memory file systems to test code serving files.
package testutil

import (
	"io/fs"
	"path"
	"testing"

	"github.com/psanford/memfs"
)

// FS is an in memory fs.FS, able to simulate files that cannot be read.
type FS struct {
	fs     *memfs.FS
	denied map[string]error
}

func (f *FS) Open(name string) (fs.File, error) {
	if err, found := f.denied[name]; found {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return f.fs.Open(name)
}

// Deny makes opening any of the named files fail with fs.ErrPermission.
func (f *FS) Deny(names ...string) *FS {
	return f.Fail(fs.ErrPermission, names...)
}

// Fail makes opening any of the named files fail with err.
func (f *FS) Fail(err error, names ...string) *FS {
	for _, name := range names {
		f.denied[name] = err
	}
	return f
}

// NewFS returns an FS containing the specified files, creating the parent
// directories as needed.
func NewFS(t *testing.T, files map[string][]byte) *FS {
	t.Helper()
	rootFS := memfs.New()
	for filename, contents := range files {
		if dir := path.Dir(filename); dir != "." {
			if err := rootFS.MkdirAll(dir, 0777); err != nil {
				t.Fatal(err)
				return nil
			}
		}
		if err := rootFS.WriteFile(filename, contents, 0755); err != nil {
			t.Fatal(err)
			return nil
		}
	}
	return &FS{fs: rootFS, denied: map[string]error{}}
}
