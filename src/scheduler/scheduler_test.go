package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browser-engine/src/config"
	"browser-engine/src/internal/errors"
)

func testSchedulerConfig(workers int) *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Workers:         workers,
		MaxAttempts:     3,
		BackoffBase:     50 * time.Millisecond,
		BackoffCap:      500 * time.Millisecond,
		TaskMaxDuration: 5 * time.Second,
	}
}

func TestTaskSucceeds(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(2))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	done := make(chan error, 1)
	taskID, err := s.Submit(TaskSpec{
		Kind:     "noop",
		Priority: PriorityMedium,
		Run:      func(ctx context.Context) error { return nil },
		OnComplete: func(id string, err error) {
			done <- err
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not complete")
	}

	status, ok := s.Status(taskID)
	require.True(t, ok)
	assert.Equal(t, TaskSucceeded, status.State)
	assert.Equal(t, 1, status.AttemptCount)
}

func TestRetriesExhaustedAfterMaxAttempts(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(2))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var attempts atomic.Int32
	done := make(chan error, 1)

	taskID, err := s.Submit(TaskSpec{
		Kind:     "always-fails",
		Priority: PriorityMedium,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return fmt.Errorf("boom")
		},
		MaxAttempts: 3,
		OnComplete: func(id string, err error) {
			done <- err
		},
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		var exhausted *errors.RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not reach terminal failure")
	}

	assert.Equal(t, int32(3), attempts.Load())

	// No further attempt after terminal failure
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())

	status, ok := s.Status(taskID)
	require.True(t, ok)
	assert.Equal(t, TaskFailed, status.State)
}

func TestHighPriorityPreemptsEarlierLowSubmission(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))

	var order []string
	var mu sync.Mutex
	record := func(name string) TaskFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// Low submitted first, High second; with one worker the High task must
	// still run first
	_, err := s.Submit(TaskSpec{Kind: "low", Priority: PriorityLow, Run: record("low")})
	require.NoError(t, err)
	_, err = s.Submit(TaskSpec{Kind: "high", Priority: PriorityHigh, Run: record("high")})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, []string{"high", "low"}, order)
}

func TestFIFOWithinPriorityTier(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))

	var order []string
	var mu sync.Mutex
	record := func(name string) TaskFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	for _, name := range []string{"first", "second", "third"} {
		_, err := s.Submit(TaskSpec{Kind: name, Priority: PriorityMedium, Run: record(name)})
		require.NoError(t, err)
	}

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestCancelQueuedTask(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))

	done := make(chan error, 1)
	taskID, err := s.Submit(TaskSpec{
		Kind:     "never-runs",
		Priority: PriorityLow,
		Run: func(ctx context.Context) error {
			t.Error("cancelled task must not run")
			return nil
		},
		OnComplete: func(id string, err error) {
			done <- err
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(taskID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("completion callback not invoked")
	}

	status, ok := s.Status(taskID)
	require.True(t, ok)
	assert.Equal(t, TaskCancelled, status.State)

	// The worker must not pick the cancelled task up
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestCancelRunningTaskSignalsBodyContext(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	started := make(chan struct{})
	observed := make(chan error, 1)
	done := make(chan error, 1)

	taskID, err := s.Submit(TaskSpec{
		Kind:     "long-running",
		Priority: PriorityMedium,
		Run: func(ctx context.Context) error {
			close(started)
			select {
			case <-ctx.Done():
				observed <- ctx.Err()
				return ctx.Err()
			case <-time.After(2 * time.Second):
				observed <- nil
				return nil
			}
		},
		OnComplete: func(id string, err error) {
			done <- err
		},
	})
	require.NoError(t, err)

	<-started
	require.NoError(t, s.Cancel(taskID))

	// The body must see the cancellation through its own context, not run
	// to completion
	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("running body never observed cancellation")
	}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("completion callback not invoked")
	}

	status, ok := s.Status(taskID)
	require.True(t, ok)
	assert.Equal(t, TaskCancelled, status.State)
}

func TestCancelBetweenRetries(t *testing.T) {
	s := NewBackgroundTaskScheduler(&config.SchedulerConfig{
		Workers:         1,
		MaxAttempts:     5,
		BackoffBase:     400 * time.Millisecond,
		BackoffCap:      time.Second,
		TaskMaxDuration: 5 * time.Second,
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var attempts atomic.Int32
	firstFailure := make(chan struct{})
	var once sync.Once

	taskID, err := s.Submit(TaskSpec{
		Kind:     "fails-once",
		Priority: PriorityMedium,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			once.Do(func() { close(firstFailure) })
			return fmt.Errorf("boom")
		},
	})
	require.NoError(t, err)

	<-firstFailure
	// Cancel while the retry backoff timer is pending
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Cancel(taskID))

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(1), attempts.Load())

	status, ok := s.Status(taskID)
	require.True(t, ok)
	assert.Equal(t, TaskCancelled, status.State)
}

func TestTaskTimeoutIsRetryable(t *testing.T) {
	s := NewBackgroundTaskScheduler(&config.SchedulerConfig{
		Workers:         1,
		MaxAttempts:     2,
		BackoffBase:     50 * time.Millisecond,
		BackoffCap:      200 * time.Millisecond,
		TaskMaxDuration: 5 * time.Second,
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var attempts atomic.Int32
	done := make(chan error, 1)

	_, err := s.Submit(TaskSpec{
		Kind:     "too-slow",
		Priority: PriorityMedium,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			<-ctx.Done()
			return ctx.Err()
		},
		MaxDuration: 30 * time.Millisecond,
		OnComplete: func(id string, err error) {
			done <- err
		},
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		var exhausted *errors.RetriesExhaustedError
		require.ErrorAs(t, err, &exhausted)
		var timeout *errors.TaskTimeoutError
		assert.ErrorAs(t, err, &timeout, "cause should be a timeout, got %v", exhausted.Cause)
	case <-time.After(3 * time.Second):
		t.Fatal("task did not fail")
	}

	// Timed out on both attempts
	assert.Equal(t, int32(2), attempts.Load())
}

func TestQueueDepthAndSummary(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))

	for i := 0; i < 3; i++ {
		_, err := s.Submit(TaskSpec{Kind: "queued", Priority: PriorityLow, Run: func(ctx context.Context) error { return nil }})
		require.NoError(t, err)
	}
	_, err := s.Submit(TaskSpec{Kind: "queued-high", Priority: PriorityHigh, Run: func(ctx context.Context) error { return nil }})
	require.NoError(t, err)

	assert.Equal(t, 4, s.QueueDepth(PriorityLow))
	assert.Equal(t, 1, s.QueueDepth(PriorityHigh))

	summary := s.ActiveSummary()
	assert.Equal(t, 4, summary.Queued)
}

func TestSubmitRequiresBody(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))

	_, err := s.Submit(TaskSpec{Kind: "empty", Priority: PriorityLow})
	assert.Error(t, err)
}

func TestCancelUnknownTask(t *testing.T) {
	s := NewBackgroundTaskScheduler(testSchedulerConfig(1))
	assert.Error(t, s.Cancel("no-such-task"))
}
