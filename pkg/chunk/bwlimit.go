// pkg/chunk/bwlimit.go

package chunk

import (
	"io"

	"github.com/juju/ratelimit"
)

type limitedReader struct {
	io.Reader
	r *ratelimit.Bucket
}

func (l *limitedReader) Read(buf []byte) (int, error) {
	n, err := l.Reader.Read(buf)
	if l.r != nil {
		l.r.Wait(int64(n))
	}
	return n, err
}

// newLoadLimit returns the bucket shared by every mirror load of a manager,
// or nil when loads are not limited.
func newLoadLimit(bps int64) *ratelimit.Bucket {
	if bps <= 0 {
		return nil
	}
	return ratelimit.NewBucketWithRate(float64(bps), bps)
}

func withLimit(r io.Reader, limit *ratelimit.Bucket) io.Reader {
	if limit == nil {
		return r
	}
	return &limitedReader{r, limit}
}
