// pkg/chunk/reader_pool.go

package chunk

import (
	"io"
	"sync"
	"time"

	"AveMQ/pkg/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type readerHandle interface {
	io.ReaderAt
	io.Closer
}

// readerPool hands out a fixed set of reader handles. acquire blocks until a
// handle is returned.
type readerPool struct {
	sync.Mutex
	cond    *utils.Cond
	free    []readerHandle
	size    int
	closed  bool
	drained bool
	log     logrus.FieldLogger
}

var errPoolClosed = errors.New("reader pool is closed")

func newReaderPool(size int, log logrus.FieldLogger, open func() (readerHandle, error)) (*readerPool, error) {
	p := &readerPool{size: size, log: log}
	p.cond = utils.NewCond(p)
	for i := 0; i < size; i++ {
		h, err := open()
		if err != nil {
			for _, h := range p.free {
				_ = h.Close()
			}
			return nil, err
		}
		p.free = append(p.free, h)
	}
	return p, nil
}

func (p *readerPool) acquire() (readerHandle, error) {
	p.Lock()
	defer p.Unlock()
	for len(p.free) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, errPoolClosed
	}
	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return h, nil
}

func (p *readerPool) release(h readerHandle) {
	p.Lock()
	defer p.Unlock()
	if p.drained {
		if err := h.Close(); err != nil {
			p.log.Warnf("close reader: %s", err)
		}
		return
	}
	p.free = append(p.free, h)
	p.cond.Broadcast()
}

// drain closes the pool, waits up to timeout for borrowed handles and closes
// every handle it got back. It returns the number of handles still out.
func (p *readerPool) drain(timeout time.Duration) int {
	p.Lock()
	defer p.Unlock()
	if p.drained {
		return 0
	}
	p.closed = true
	p.cond.Broadcast()
	deadline := time.Now().Add(timeout)
	for len(p.free) < p.size {
		left := time.Until(deadline)
		if left <= 0 || p.cond.WaitWithTimeout(left) {
			break
		}
	}
	for _, h := range p.free {
		if err := h.Close(); err != nil {
			p.log.Warnf("close reader: %s", err)
		}
	}
	leaked := p.size - len(p.free)
	p.free = nil
	p.drained = true
	if leaked > 0 {
		p.log.Warnf("%d readers are still in use after %s", leaked, timeout)
	}
	return leaked
}
