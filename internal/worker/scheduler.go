// Package worker runs background tasks outside the request that started them.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/leadimport/internal/logger"
	"golang.org/x/sync/semaphore"
)

// ErrSchedulerClosed is returned by Submit after Shutdown has been called.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Handle tracks a submitted task.
type Handle interface {
	ID() string
	// Done is closed when the task returns.
	Done() <-chan struct{}
	// Err returns the task's error once Done is closed.
	Err() error
}

// Scheduler accepts tasks and runs them asynchronously.
type Scheduler interface {
	Submit(name string, task Task) (Handle, error)
	Shutdown(ctx context.Context) error
}

type handle struct {
	id   string
	done chan struct{}
	err  error
}

func (h *handle) ID() string            { return h.id }
func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	<-h.done
	return h.err
}

// InMemoryScheduler runs every task on its own goroutine. Tasks do not
// survive a process restart.
type InMemoryScheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewInMemoryScheduler creates a scheduler. maxConcurrent caps the number of
// tasks running at once; zero means no cap.
func NewInMemoryScheduler(maxConcurrent int) *InMemoryScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &InMemoryScheduler{ctx: ctx, cancel: cancel}
	if maxConcurrent > 0 {
		s.sem = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return s
}

// Submit starts task in the background and returns immediately. The task's
// context is cancelled if Shutdown gives up waiting.
func (s *InMemoryScheduler) Submit(name string, task Task) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}

	h := &handle{id: uuid.NewString(), done: make(chan struct{})}
	s.wg.Add(1)
	go s.run(name, h, task)
	return h, nil
}

func (s *InMemoryScheduler) run(name string, h *handle, task Task) {
	defer s.wg.Done()
	defer close(h.done)

	ctx := logger.WithFields(s.ctx, logger.Fields{
		logger.FieldComponent: "scheduler",
		"task":                name,
		"task_id":             h.id,
	})
	log := logger.FromContext(ctx)

	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			h.err = err
			log.WithError(err).Warn("Task dropped before start")
			return
		}
		defer s.sem.Release(1)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.err = errors.New("task panicked")
			log.WithField("panic", r).Error("Task panicked")
		}
	}()

	h.err = task(ctx)
	elapsed := time.Since(start).Milliseconds()
	if h.err != nil {
		log.WithError(h.err).WithField(logger.FieldDurationMs, elapsed).Error("Task failed")
		return
	}
	log.WithField(logger.FieldDurationMs, elapsed).Debug("Task finished")
}

// Wait blocks until every submitted task has returned.
func (s *InMemoryScheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones. If ctx expires
// first, running tasks are cancelled and Shutdown waits for them to return.
func (s *InMemoryScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
