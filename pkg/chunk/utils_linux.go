// pkg/chunk/utils_linux.go

package chunk

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel f is going to be read front to back.
func adviseSequential(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL); err != nil {
		logger.Debugf("fadvise %s: %s", f.Name(), err)
	}
}
