//go:build !linux

// pkg/chunk/utils_other.go

package chunk

import "os"

func adviseSequential(f *os.File) {}
