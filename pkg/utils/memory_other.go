//go:build !linux

// pkg/utils/memory_other.go

package utils

import "errors"

// GetMemoryInfo is only implemented on Linux; callers treat the error as
// "memory pressure unknown".
func GetMemoryInfo() (total, used uint64, err error) {
	return 0, 0, errors.New("memory info is not supported on this platform")
}
