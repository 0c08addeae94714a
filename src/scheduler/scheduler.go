package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"browser-engine/src/config"
	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
	"browser-engine/src/internal/errors"
)

// BackgroundTaskScheduler executes prefetch/suspend/restore work on a
// bounded worker pool fed by a priority queue. Failures retry with
// exponential backoff until attempts are exhausted; cancellation is
// cooperative only.
type BackgroundTaskScheduler struct {
	cfg *config.SchedulerConfig

	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskHeap
	tasks   map[string]*task
	timers  map[string]*time.Timer
	summary Summary
	nextSeq uint64
	started bool
	rnd     *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBackgroundTaskScheduler creates a scheduler. A nil config falls back
// to defaults.
func NewBackgroundTaskScheduler(cfg *config.SchedulerConfig) *BackgroundTaskScheduler {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Scheduler
	}
	s := &BackgroundTaskScheduler{
		cfg:    cfg,
		tasks:  make(map[string]*task),
		timers: make(map[string]*time.Timer),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker pool
func (s *BackgroundTaskScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultWorkerCount
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	// Wake blocked workers when the context is cancelled
	go func() {
		<-s.ctx.Done()
		s.cond.Broadcast()
	}()

	s.started = true
	common.SchedulerLogger.Info("Scheduler started with %d workers", workers)
	return nil
}

// Stop shuts the pool down. Queued tasks stay queued; running task bodies
// receive a cooperative cancellation signal and are waited on.
func (s *BackgroundTaskScheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.cond.Broadcast()
	s.wg.Wait()

	common.SchedulerLogger.Info("Scheduler stopped")
	return nil
}

// Submit enqueues a task and returns its ID
func (s *BackgroundTaskScheduler) Submit(spec TaskSpec) (string, error) {
	if spec.Run == nil {
		return "", fmt.Errorf("task body is required")
	}

	maxAttempts := spec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxAttempts
	}

	t := &task{
		id:          uuid.NewString(),
		spec:        spec,
		maxAttempts: maxAttempts,
		state:       TaskQueued,
		heapIndex:   -1,
	}

	s.mu.Lock()
	t.seq = s.nextSeq
	s.nextSeq++
	s.tasks[t.id] = t
	heap.Push(&s.queue, t)
	s.mu.Unlock()
	s.cond.Signal()

	common.SchedulerLogger.Debug("Submitted %s task '%s' (%s)", spec.Priority, t.id, spec.Kind)
	return t.id, nil
}

// Cancel cancels a task. Effective while queued or waiting between retries;
// a running task is only signalled through its context and keeps its slot
// until the body returns.
func (s *BackgroundTaskScheduler) Cancel(taskID string) error {
	s.mu.Lock()

	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown task '%s'", taskID)
	}

	switch t.state {
	case TaskSucceeded, TaskFailed, TaskCancelled:
		s.mu.Unlock()
		return nil
	case TaskQueued:
		if timer, ok := s.timers[taskID]; ok {
			timer.Stop()
			delete(s.timers, taskID)
		}
		if t.heapIndex >= 0 {
			heap.Remove(&s.queue, t.heapIndex)
		}
		t.state = TaskCancelled
		s.summary.Cancelled++
		spec := t.spec
		s.mu.Unlock()
		if spec.OnComplete != nil {
			spec.OnComplete(taskID, context.Canceled)
		}
		return nil
	case TaskRunning:
		// Cooperative only: cancel the attempt context so the body can
		// observe it at its next safe point; the worker records the
		// cancellation when the body returns
		t.cancelRequested = true
		t.lastErr = context.Canceled
		cancelAttempt := t.cancelAttempt
		s.mu.Unlock()
		if cancelAttempt != nil {
			cancelAttempt()
		}
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Status returns a snapshot of a task
func (s *BackgroundTaskScheduler) Status(taskID string) (TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	return s.statusLocked(t), true
}

// ActiveSummary aggregates current task counts
func (s *BackgroundTaskScheduler) ActiveSummary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := s.summary
	for _, t := range s.tasks {
		switch t.state {
		case TaskQueued:
			summary.Queued++
		case TaskRunning:
			summary.Running++
		}
	}
	return summary
}

// QueueDepth returns the number of queued tasks at or above the priority
func (s *BackgroundTaskScheduler) QueueDepth(atOrAbove Priority) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := 0
	for _, t := range s.queue {
		if t.spec.Priority >= atOrAbove {
			depth++
		}
	}
	return depth
}

// Workers returns the configured pool size
func (s *BackgroundTaskScheduler) Workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return constants.DefaultWorkerCount
}

func (s *BackgroundTaskScheduler) statusLocked(t *task) TaskStatus {
	status := TaskStatus{
		TaskID:       t.id,
		Kind:         t.spec.Kind,
		Priority:     t.spec.Priority.String(),
		State:        t.state,
		AttemptCount: t.attemptCount,
		MaxAttempts:  t.maxAttempts,
	}
	if t.nextRunAt > 0 {
		status.NextRunAt = time.Unix(0, t.nextRunAt)
	}
	if t.lastErr != nil {
		status.LastError = t.lastErr.Error()
	}
	return status
}

func (s *BackgroundTaskScheduler) workerLoop(worker int) {
	defer s.wg.Done()

	for {
		t := s.nextTask()
		if t == nil {
			return
		}
		s.runTask(worker, t)
	}
}

// nextTask blocks until a task is runnable or the scheduler stops
func (s *BackgroundTaskScheduler) nextTask() *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return nil
		}
		if s.queue.Len() > 0 {
			t := heap.Pop(&s.queue).(*task)
			t.state = TaskRunning
			t.nextRunAt = 0
			return t
		}
		s.cond.Wait()
	}
}

// runTask executes one attempt of a task, enforcing its max duration. On
// timeout the worker slot is reclaimed even though the body may still be
// running; its eventual result is discarded.
func (s *BackgroundTaskScheduler) runTask(worker int, t *task) {
	maxDuration := t.spec.MaxDuration
	if maxDuration <= 0 {
		maxDuration = s.cfg.TaskMaxDuration
	}
	if maxDuration <= 0 {
		maxDuration = constants.DefaultTaskMaxDuration
	}

	taskCtx, taskCancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	t.cancelAttempt = taskCancel
	// A Cancel that raced the dequeue could not reach the attempt context
	cancelled := t.cancelRequested
	s.mu.Unlock()
	if cancelled {
		taskCancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- t.spec.Run(taskCtx)
	}()

	timer := time.NewTimer(maxDuration)
	defer timer.Stop()

	var attemptErr error
	select {
	case attemptErr = <-done:
		taskCancel()
	case <-timer.C:
		taskCancel()
		attemptErr = errors.NewTaskTimeoutError(t.id, maxDuration)
		common.SchedulerLogger.Warn("Worker %d abandoned task '%s': %v", worker, t.id, attemptErr)
	}

	s.settleAttempt(t, attemptErr)
}

// settleAttempt records an attempt outcome and decides between success,
// retry with backoff, terminal failure, and cancellation observed mid-run.
func (s *BackgroundTaskScheduler) settleAttempt(t *task, attemptErr error) {
	s.mu.Lock()

	t.attemptCount++
	t.cancelAttempt = nil

	// Cancellation requested while running wins over the attempt result
	if t.cancelRequested {
		t.state = TaskCancelled
		s.summary.Cancelled++
		spec := t.spec
		s.mu.Unlock()
		if spec.OnComplete != nil {
			spec.OnComplete(t.id, context.Canceled)
		}
		return
	}

	if attemptErr == nil {
		t.state = TaskSucceeded
		t.lastErr = nil
		s.summary.Succeeded++
		spec := t.spec
		s.mu.Unlock()
		if spec.OnComplete != nil {
			spec.OnComplete(t.id, nil)
		}
		return
	}

	t.lastErr = attemptErr

	if t.attemptCount >= t.maxAttempts {
		t.state = TaskFailed
		s.summary.Failed++
		exhausted := errors.NewRetriesExhaustedError(t.id, t.attemptCount, attemptErr)
		spec := t.spec
		s.mu.Unlock()
		common.SchedulerLogger.Error("Task '%s' terminally failed: %v", t.id, exhausted)
		if spec.OnComplete != nil {
			spec.OnComplete(t.id, exhausted)
		}
		return
	}

	// Retry with backoff: the task is queued again once the delay elapses
	delay := computeBackoff(t.attemptCount, s.cfg.BackoffBase, s.cfg.BackoffCap, s.rnd)
	t.state = TaskQueued
	t.nextRunAt = time.Now().Add(delay).UnixNano()
	taskID := t.id
	s.timers[taskID] = time.AfterFunc(delay, func() {
		s.requeue(taskID)
	})
	s.mu.Unlock()

	common.SchedulerLogger.Debug("Task '%s' attempt %d/%d failed, retrying in %v: %v",
		t.id, t.attemptCount, t.maxAttempts, delay, attemptErr)
}

func (s *BackgroundTaskScheduler) requeue(taskID string) {
	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.cond.Signal()
	}()

	delete(s.timers, taskID)
	t, ok := s.tasks[taskID]
	if !ok || t.state != TaskQueued || t.heapIndex >= 0 {
		return
	}
	if !s.started {
		return
	}
	t.nextRunAt = 0
	heap.Push(&s.queue, t)
}
