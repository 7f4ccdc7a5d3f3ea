// Config loaders to read/write files in directories.
package directory

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/kirsle/configdir"
)

type Directory struct {
	path string
}

// Returns the absolute path to a specific folder within the
// system default configuration directory for the current user.
//
// On Linux systems, this generally means ~/.config/<app>/<namespace>
func GetConfigDir(app string, namespaces ...string) (string, error) {
	paths := append([]string{app}, namespaces...)
	dir := configdir.LocalConfig(paths...)
	if !filepath.IsAbs(dir) {
		user, err := user.Current()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(user.HomeDir, dir)
	}

	return dir, nil
}

// OpenHomeDir returns a Directory in the system default configuration
// directory for the current user.
//
// On Linux systems, this generally means ~/.config/<app>/<namespace>/.
func OpenHomeDir(app string, namespaces ...string) (*Directory, error) {
	dir, err := GetConfigDir(app, namespaces...)
	if err != nil {
		return nil, err
	}

	return &Directory{path: dir}, nil
}

// OpenDir returns a Directory to read and write files in the specified
// path. The directory is created on first Write.
func OpenDir(base string, sub ...string) *Directory {
	path := filepath.Join(append([]string{base}, sub...)...)
	return &Directory{path: path}
}

func (hd *Directory) Path() string {
	return hd.path
}

func (hd *Directory) List() ([]string, error) {
	files, err := os.ReadDir(hd.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	paths := []string{}
	for _, file := range files {
		if !file.Type().IsRegular() {
			continue
		}
		paths = append(paths, file.Name())
	}
	return paths, nil
}

func (hd *Directory) Delete(name string) error {
	return os.Remove(filepath.Join(hd.path, name))
}

func (hd *Directory) Read(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(hd.path, name))
}

// Write stores data in the named file, atomically replacing it if it exists.
func (hd *Directory) Write(name string, data []byte) error {
	if err := os.MkdirAll(hd.path, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(hd.path, name)
	if err != nil {
		return err
	}
	tmp.Close()

	if err := os.WriteFile(tmp.Name(), data, 0600); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(hd.path, name))
}
