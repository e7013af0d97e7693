// pkg/utils/memory_linux.go

package utils

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// GetMemoryInfo returns the total physical memory of the host and the part of
// it in use, both in bytes. Page cache the kernel can reclaim is not counted
// as used.
func GetMemoryInfo() (total, used uint64, err error) {
	if total, used, err = memoryFromProc(procfs.DefaultMountPoint); err == nil {
		return total, used, nil
	}
	return memoryFromSysinfo()
}

// memoryFromProc reads MemTotal and MemAvailable of the proc filesystem
// mounted at root.
func memoryFromProc(root string) (total, used uint64, err error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return 0, 0, err
	}
	info, err := fs.Meminfo()
	if err != nil {
		return 0, 0, err
	}
	if info.MemTotal == nil || info.MemAvailable == nil {
		return 0, 0, errors.New("MemTotal or MemAvailable is missing in meminfo")
	}
	total = *info.MemTotal << 10
	available := *info.MemAvailable << 10
	if available > total {
		available = total
	}
	return total, total - available, nil
}

// memoryFromSysinfo is used by kernels without MemAvailable. Buffers are
// counted as free, the page cache is not reported by sysinfo.
func memoryFromSysinfo() (total, used uint64, err error) {
	var info unix.Sysinfo_t
	if err = unix.Sysinfo(&info); err != nil {
		return 0, 0, err
	}
	unit := uint64(info.Unit)
	total = uint64(info.Totalram) * unit
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	if free > total {
		free = total
	}
	return total, total - free, nil
}
