// pkg/chunk/page.go

package chunk

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"AveMQ/pkg/utils"

	"github.com/pkg/errors"
)

// Page is an off-heap buffer with a single owner. It lives outside of the Go
// heap and is returned to the OS by Release.
type Page struct {
	released atomic.Bool
	Data     []byte
}

// NewOffPage allocates a zeroed off-heap page of `size` bytes.
func NewOffPage(size int) (*Page, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid page size %d", size)
	}
	p, err := utils.Alloc(size)
	if err != nil {
		return nil, errors.Wrapf(err, "alloc %d bytes", size)
	}
	page := &Page{Data: p}
	runtime.SetFinalizer(page, func(p *Page) {
		if !p.released.Load() {
			logger.Errorf("page %p of %d bytes is not released", p, len(p.Data))
		}
	})
	return page, nil
}

// Release frees the page. Only the first call frees, later ones are reported.
func (p *Page) Release() {
	if p.released.Swap(true) {
		logger.Errorf("page %p released twice", p)
		return
	}
	if err := utils.Free(p.Data); err != nil {
		logger.Errorf("free page %p: %s", p, err)
	}
	p.Data = nil
}

var errPageFreed = errors.Wrap(ErrDestroying, "memory of chunk is already freed")

// guardedPage is the memory of a memory chunk. Every access holds the read
// lock and checks the freed flag, so the page is never touched after free.
type guardedPage struct {
	mu    sync.RWMutex
	freed atomic.Bool
	page  *Page
}

func newGuardedPage(page *Page) *guardedPage {
	return &guardedPage{page: page}
}

func (g *guardedPage) size() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.freed.Load() {
		return 0
	}
	return int64(len(g.page.Data))
}

func (g *guardedPage) ReadAt(buf []byte, off int64) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.freed.Load() {
		return 0, errPageFreed
	}
	data := g.page.Data
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(buf, data[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (g *guardedPage) WriteAt(buf []byte, off int64) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.freed.Load() {
		return 0, errPageFreed
	}
	data := g.page.Data
	if off < 0 || off+int64(len(buf)) > int64(len(data)) {
		return 0, errors.Errorf("write [%d, %d) out of page of %d bytes", off, off+int64(len(buf)), len(data))
	}
	return copy(data[off:], buf), nil
}

// free releases the page once. It waits for accesses in progress.
func (g *guardedPage) free() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.freed.Swap(true) {
		return false
	}
	g.page.Release()
	return true
}

// pageReader is a reader handle of a memory chunk.
type pageReader struct {
	g *guardedPage
}

func (r *pageReader) ReadAt(buf []byte, off int64) (int, error) {
	return r.g.ReadAt(buf, off)
}

func (r *pageReader) Close() error {
	return nil
}
