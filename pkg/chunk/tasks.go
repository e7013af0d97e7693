// pkg/chunk/tasks.go

package chunk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type task struct {
	name   string
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

func (t *task) run(fn func(stop <-chan struct{})) {
	defer close(t.done)
	tick := time.NewTicker(t.period)
	defer tick.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-tick.C:
			fn(t.stop)
		}
	}
}

// scheduler runs named periodic tasks until they are stopped.
type scheduler struct {
	sync.Mutex
	tasks map[string]*task
	log   logrus.FieldLogger
}

func newScheduler(log logrus.FieldLogger) *scheduler {
	return &scheduler{tasks: make(map[string]*task), log: log}
}

// startTask runs fn every period. A task with the same name is replaced. fn
// gets a channel closed when the task is being stopped.
func (s *scheduler) startTask(name string, period time.Duration, fn func(stop <-chan struct{})) {
	s.stopTask(name)
	t := &task{name: name, period: period, stop: make(chan struct{}), done: make(chan struct{})}
	s.Lock()
	s.tasks[name] = t
	s.Unlock()
	go t.run(fn)
	s.log.Debugf("task %s started, period %s", name, period)
}

// stopTask stops a task and waits for its current run to finish.
func (s *scheduler) stopTask(name string) bool {
	s.Lock()
	t, ok := s.tasks[name]
	delete(s.tasks, name)
	s.Unlock()
	if !ok {
		return false
	}
	close(t.stop)
	<-t.done
	s.log.Debugf("task %s stopped", name)
	return true
}

func (s *scheduler) stopAll() {
	s.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.Unlock()
	for _, name := range names {
		s.stopTask(name)
	}
}
