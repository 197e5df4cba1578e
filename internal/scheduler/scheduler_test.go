package scheduler

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler() *Scheduler {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAfterRunsOnce(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.After(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var ran atomic.Bool
	task := s.After(50*time.Millisecond, func() { ran.Store(true) })
	task.Cancel()
	task.Cancel()

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Fatalf("cancelled task ran")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", s.Pending())
	}
}

func TestEveryRepeatsUntilCancelled(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	var count atomic.Int32
	reached := make(chan struct{})
	task := s.Every(0, 2*time.Millisecond, func() {
		if count.Add(1) == 3 {
			close(reached)
		}
	})

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("repeating task ran %d times", count.Load())
	}

	task.Cancel()
	task.Cancel()
}

func TestStopCancelsPendingAndRejectsNew(t *testing.T) {
	s := newTestScheduler()

	var ran atomic.Bool
	s.After(50*time.Millisecond, func() { ran.Store(true) })
	s.Stop()

	s.After(0, func() { ran.Store(true) })

	time.Sleep(100 * time.Millisecond)
	if ran.Load() {
		t.Fatalf("task ran after Stop")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestScheduler()
	defer s.Stop()

	done := make(chan struct{})
	s.After(0, func() { panic("boom") })
	s.After(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler stopped after panic")
	}
}
