// Package kassets serves assets compiled in the binary, normally with embed.FS.
package kassets

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
)

// FS wraps the required interfaces for reading embedded assets into a named
// type, since the `fs` package doesn't seem to have a pre-made interface for
// this already.
type FS interface {
	fs.ReadDirFS
	fs.ReadFileFS
}

// EmbedSubdir returns an FS implementation for a subdirectory of an embed.FS,
// which is useful for stripping the top-level directory.
func EmbedSubdir(f embed.FS, subdir string) (FS, error) {
	subdirFS, err := fs.Sub(f, subdir)
	if err != nil {
		return nil, fmt.Errorf("can't create FS for subdir %q: %w", subdir, err)
	}
	casted, ok := subdirFS.(FS)
	if !ok {
		return nil, fmt.Errorf("can't cast fs.FS impl %T to FS", subdirFS)
	}
	return casted, nil
}

// MustEmbedSubdir is a variation of EmbedSubdir that panics on error, which is
// useful for concise initialization.
func MustEmbedSubdir(f embed.FS, subdir string) FS {
	assetFS, err := EmbedSubdir(f, subdir)
	if err != nil {
		panic(err)
	}
	return assetFS
}

// MapFromFS returns a map of (path -> contents) for each file in the FS,
// descending in subdirectories. Paths are relative to the root of the FS.
func MapFromFS(f fs.FS) (map[string][]byte, error) {
	assetMap := map[string][]byte{}

	err := fs.WalkDir(f, ".", func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("unable to list assets: %w", err)
		}
		if entry.IsDir() {
			return nil
		}

		data, err := fs.ReadFile(f, name)
		if err != nil {
			return fmt.Errorf("failed to read asset %q: %w", name, err)
		}
		assetMap[path.Clean(name)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assetMap, nil
}
