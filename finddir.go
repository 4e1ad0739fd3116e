package memox

import (
	"os"
	"path"
)

// NearestMemoxDir locates the nearest directory named ".memox", starting at
// the current directory, walking up to the root. If no directory was found,
// ErrNoMemoxDir is returned.
func NearestMemoxDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for lastDir := ""; dir != lastDir; lastDir, dir = dir, path.Dir(dir) {
		filename := dir + "/.memox"
		info, err := os.Stat(filename)
		if err != nil && os.IsNotExist(err) {
			continue
		}
		if err == nil && !info.Mode().IsDir() {
			return filename, prefixError(ErrNoMemoxDir, "%s not a directory", filename)
		}
		return filename, err
	}
	return "", ErrNoMemoxDir
}
