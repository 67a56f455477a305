package display

import (
	"os"
	"path/filepath"
)

// RuntimeDir returns the base directory for socket and lock artifacts
// from XDG_RUNTIME_DIR. The value must be set and absolute; nothing is
// created or checked on disk here. Everything else in this package
// takes the directory as an explicit parameter, so tests and embedders
// never have to touch the environment.
func RuntimeDir() (string, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" || !filepath.IsAbs(dir) {
		return "", ErrRuntimeDirInvalid
	}
	return dir, nil
}

// socketPaths derives the socket and lock file locations for a name
// inside dir
func socketPaths(dir, name string) (bindPath, lockPath string) {
	bindPath = filepath.Join(dir, name)
	lockPath = bindPath + ".lock"
	return bindPath, lockPath
}

// SocketPaths returns the socket and lock file locations a name maps
// to inside dir
func SocketPaths(dir, name string) (bindPath, lockPath string) {
	return socketPaths(dir, name)
}
