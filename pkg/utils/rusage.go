// pkg/utils/rusage.go

package utils

import (
	"time"

	"golang.org/x/sys/unix"
)

// Rusage is the resource usage of the current process.
type Rusage struct {
	unix.Rusage
}

func (ru *Rusage) UserTime() time.Duration {
	return time.Duration(ru.Utime.Nano())
}

func (ru *Rusage) SystemTime() time.Duration {
	return time.Duration(ru.Stime.Nano())
}

// MaxRss returns the peak resident set size in bytes (Linux reports KiB).
func (ru *Rusage) MaxRss() int64 {
	return int64(ru.Maxrss) << 10
}

func GetRusage() *Rusage {
	var ru unix.Rusage
	_ = unix.Getrusage(unix.RUSAGE_SELF, &ru)
	return &Rusage{ru}
}
