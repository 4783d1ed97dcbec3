package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTaskAsynchronously(t *testing.T) {
	s := NewInMemoryScheduler(0)
	release := make(chan struct{})

	h, err := s.Submit("blocking", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID())

	select {
	case <-h.Done():
		t.Fatal("task finished before release")
	default:
	}

	close(release)
	assert.NoError(t, h.Err())
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestHandleReportsTaskError(t *testing.T) {
	s := NewInMemoryScheduler(0)
	boom := errors.New("boom")

	h, err := s.Submit("failing", func(ctx context.Context) error { return boom })
	require.NoError(t, err)
	assert.ErrorIs(t, h.Err(), boom)
}

func TestHandleRecoversPanic(t *testing.T) {
	s := NewInMemoryScheduler(0)

	h, err := s.Submit("panicking", func(ctx context.Context) error { panic("oops") })
	require.NoError(t, err)
	assert.Error(t, h.Err())
}

func TestConcurrencyCap(t *testing.T) {
	s := NewInMemoryScheduler(2)
	var running, peak int32

	for i := 0; i < 6; i++ {
		_, err := s.Submit("capped", func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
		require.NoError(t, err)
	}

	s.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSubmitAfterShutdown(t *testing.T) {
	s := NewInMemoryScheduler(0)
	require.NoError(t, s.Shutdown(context.Background()))

	_, err := s.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestShutdownTimeoutCancelsTasks(t *testing.T) {
	s := NewInMemoryScheduler(0)
	started := make(chan struct{})

	h, err := s.Submit("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = s.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, h.Err(), context.Canceled)
}
