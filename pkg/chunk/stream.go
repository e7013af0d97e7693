// pkg/chunk/stream.go

package chunk

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// chunkStream is the write side of a chunk. Write appends at the current
// offset, WriteAt is used for the footer only.
type chunkStream interface {
	Write(p []byte) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Flush(sync bool) error
	Resize(size int64) error
	Close() error
}

type fileStream struct {
	file *os.File
	w    *bufio.Writer
}

func newFileStream(f *os.File, bufferSize int, offset int64) (*fileStream, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seek %s to %d", f.Name(), offset)
	}
	return &fileStream{file: f, w: bufio.NewWriterSize(f, bufferSize)}, nil
}

func (s *fileStream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *fileStream) WriteAt(p []byte, off int64) (int, error) {
	if err := s.w.Flush(); err != nil {
		return 0, err
	}
	return s.file.WriteAt(p, off)
}

func (s *fileStream) Flush(sync bool) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if sync {
		return s.file.Sync()
	}
	return nil
}

func (s *fileStream) Resize(size int64) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Truncate(size)
}

func (s *fileStream) Close() error {
	err := s.w.Flush()
	if e := s.file.Close(); err == nil {
		err = e
	}
	return err
}

type memoryStream struct {
	page *guardedPage
	off  int64
}

func newMemoryStream(page *guardedPage, offset int64) *memoryStream {
	return &memoryStream{page: page, off: offset}
}

func (s *memoryStream) Write(p []byte) (int, error) {
	n, err := s.page.WriteAt(p, s.off)
	s.off += int64(n)
	return n, err
}

func (s *memoryStream) WriteAt(p []byte, off int64) (int, error) {
	return s.page.WriteAt(p, off)
}

func (s *memoryStream) Flush(bool) error {
	return nil
}

// Resize keeps the allocation, a memory chunk never grows.
func (s *memoryStream) Resize(size int64) error {
	if size > s.page.size() {
		return errors.Errorf("cannot grow memory chunk from %d to %d bytes", s.page.size(), size)
	}
	return nil
}

func (s *memoryStream) Close() error {
	return nil
}
