package memory

import (
	"sync"
	"time"

	"github.com/siohaza/limbogate/internal/proxy"
)

// ManualScheduler only runs tasks when Advance moves its clock.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner     *ManualScheduler
	seq       int
	due       time.Time
	interval  time.Duration
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() {
	t.owner.mu.Lock()
	t.cancelled = true
	t.owner.mu.Unlock()
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) After(delay time.Duration, fn func()) proxy.Task {
	return s.add(delay, 0, fn)
}

func (s *ManualScheduler) Every(initial, interval time.Duration, fn func()) proxy.Task {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return s.add(initial, interval, fn)
}

func (s *ManualScheduler) add(delay, interval time.Duration, fn func()) *manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTask{
		owner:    s,
		seq:      s.seq,
		due:      s.now.Add(delay),
		interval: interval,
		fn:       fn,
	}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock forward by d and runs every task that falls due,
// in due order, with the clock set to each task's due time.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDue(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}

		s.now = next.due
		if next.interval > 0 {
			next.due = next.due.Add(next.interval)
		} else {
			next.cancelled = true
		}
		fn := next.fn
		s.mu.Unlock()

		fn()
	}
}

// Pending counts tasks that are neither cancelled nor finished.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (s *ManualScheduler) nextDue(limit time.Time) *manualTask {
	var next *manualTask
	live := s.tasks[:0]
	for _, t := range s.tasks {
		if t.cancelled {
			continue
		}
		live = append(live, t)
		if t.due.After(limit) {
			continue
		}
		if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.seq < next.seq) {
			next = t
		}
	}
	s.tasks = live
	return next
}
