// pkg/utils/alloc.go

package utils

import (
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

var used int64

// Alloc returns a zeroed buffer of `size` bytes outside of the Go heap.
// The buffer must be returned with Free exactly once.
func Alloc(size int) ([]byte, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&used, int64(len(m)))
	return m, nil
}

// Free releases a buffer returned by Alloc.
func Free(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	size := int64(len(b))
	m := mmap.MMap(b[:cap(b)])
	if err := m.Unmap(); err != nil {
		return err
	}
	atomic.AddInt64(&used, -size)
	return nil
}

// AllocMemory returns the number of bytes currently held by Alloc.
func AllocMemory() int64 {
	return atomic.LoadInt64(&used)
}
