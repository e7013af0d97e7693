// pkg/chunk/utils.go

package chunk

import (
	"os"
	"path/filepath"
)

// syncDir makes a rename inside dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// markReadOnly seals a completed chunk file.
func markReadOnly(name string) error {
	return os.Chmod(name, 0444)
}

func isReadOnly(fi os.FileInfo) bool {
	return fi.Mode().Perm()&0222 == 0
}

func baseName(name string) string {
	return filepath.Base(name)
}
