package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/siohaza/limbogate/internal/proxy"
)

// Scheduler runs callbacks on timers. Every task can be cancelled
// individually; Stop cancels everything still pending.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[uint64]*task
	nextID  uint64
	stopped bool
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[uint64]*task),
		logger: logger,
	}
}

type task struct {
	id    uint64
	owner *Scheduler
	once  sync.Once
	stop  chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

func (t *task) Cancel() {
	t.once.Do(func() {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
		}
		t.mu.Unlock()
		close(t.stop)
		t.owner.forget(t.id)
	})
}

// finish marks a fired one-shot task as done.
func (t *task) finish() {
	t.once.Do(func() {
		close(t.stop)
		t.owner.forget(t.id)
	})
}

func (t *task) cancelled() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (s *Scheduler) After(delay time.Duration, fn func()) proxy.Task {
	t := s.track()
	if t.cancelled() {
		return t
	}

	t.mu.Lock()
	t.timer = time.AfterFunc(delay, func() {
		if t.cancelled() {
			return
		}
		s.run(fn)
		t.finish()
	})
	t.mu.Unlock()
	return t
}

func (s *Scheduler) Every(initial, interval time.Duration, fn func()) proxy.Task {
	t := s.track()
	if t.cancelled() {
		return t
	}

	if interval <= 0 {
		interval = time.Millisecond
	}

	go func() {
		first := time.NewTimer(initial)
		defer first.Stop()

		select {
		case <-t.stop:
			return
		case <-first.C:
		}
		s.run(fn)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				if t.cancelled() {
					return
				}
				s.run(fn)
			}
		}
	}()
	return t
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

func (s *Scheduler) track() *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := &task{
		id:    s.nextID,
		owner: s,
		stop:  make(chan struct{}),
	}

	if s.stopped {
		t.once.Do(func() { close(t.stop) })
		return t
	}

	s.tasks[t.id] = t
	return t
}

func (s *Scheduler) forget(id uint64) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

func (s *Scheduler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "panic", r)
		}
	}()
	fn()
}
