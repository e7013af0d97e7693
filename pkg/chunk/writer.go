// pkg/chunk/writer.go

package chunk

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChunkWriter appends records to the last chunk of a manager and rolls over
// to a new chunk when the current one is full.
type ChunkWriter struct {
	manager *ChunkManager
	log     logrus.FieldLogger

	mu      sync.Mutex
	current atomic.Pointer[Chunk]
	opened  bool
	closed  bool
	tasks   *scheduler
}

func NewChunkWriter(manager *ChunkManager) *ChunkWriter {
	log := manager.log.WithField("writer", true)
	return &ChunkWriter{manager: manager, log: log, tasks: newScheduler(log)}
}

// Open continues the last chunk of the manager, or creates the first one.
func (w *ChunkWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if w.opened {
		return nil
	}
	current := w.manager.GetLastChunk()
	if current == nil || current.IsCompleted() {
		var err error
		if current, err = w.manager.AddNewChunk(); err != nil {
			return err
		}
	}
	w.current.Store(current)
	w.opened = true

	cfg := w.manager.config
	if !cfg.SyncFlush && !w.manager.isMemory {
		w.tasks.startTask(taskFlushChunk, cfg.FlushInterval, func(<-chan struct{}) {
			if err := w.Flush(); err != nil {
				w.log.Errorf("flush: %s", err)
			}
		})
	}
	w.log.Infof("writer opened at %s, position %d", current, current.GlobalDataPosition())
	return nil
}

// Write appends record and returns its global position. A closed writer
// returns -1.
func (w *ChunkWriter) Write(record LogRecord) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return -1, nil
	}
	current := w.current.Load()
	if current == nil {
		return -1, errors.Wrap(ErrWriterClosed, "writer is not opened")
	}
	if current.IsCompleted() {
		next, err := w.manager.AddNewChunk()
		if err != nil {
			return -1, err
		}
		current = next
		w.current.Store(current)
	}

	result, err := current.TryAppend(record)
	if err != nil {
		return -1, err
	}
	if !result.Success {
		if err = current.Complete(); err != nil {
			return -1, err
		}
		next, err := w.manager.AddNewChunk()
		if err != nil {
			return -1, err
		}
		current = next
		w.current.Store(current)
		if result, err = current.TryAppend(record); err != nil {
			return -1, err
		}
		if !result.Success {
			return -1, newError(ErrWrite, current, "record does not fit into an empty chunk of %d bytes",
				current.capacity())
		}
	}

	if w.manager.config.SyncFlush && !w.manager.isMemory {
		if err = current.Flush(); err != nil {
			return -1, err
		}
	}
	return result.Position, nil
}

// Flush flushes the current chunk.
func (w *ChunkWriter) Flush() error {
	if current := w.current.Load(); current != nil {
		return current.Flush()
	}
	return nil
}

// GlobalPosition is the position the next record is going to be written at.
func (w *ChunkWriter) GlobalPosition() int64 {
	if current := w.current.Load(); current != nil {
		return current.GlobalDataPosition()
	}
	return 0
}

func (w *ChunkWriter) CurrentChunk() *Chunk {
	return w.current.Load()
}

// Close stops the flush task and flushes the current chunk. Chunks stay open,
// they are closed with the manager.
func (w *ChunkWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.tasks.stopAll()
	if err := w.Flush(); err != nil {
		return err
	}
	w.log.Infof("writer closed at position %d", w.GlobalPosition())
	return nil
}
