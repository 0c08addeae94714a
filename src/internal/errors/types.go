package errors

import (
	"fmt"
	"time"
)

// MonitorUnavailableError indicates the resource monitor could not produce a
// fresh snapshot after repeated read failures. Consumers should fall back to
// a conservative Medium pressure assumption.
type MonitorUnavailableError struct {
	ConsecutiveFailures int
	Cause               error
}

func (e *MonitorUnavailableError) Error() string {
	return fmt.Sprintf("resource monitor unavailable after %d consecutive read failures: %v",
		e.ConsecutiveFailures, e.Cause)
}

func (e *MonitorUnavailableError) Unwrap() error {
	return e.Cause
}

// BudgetExceededError indicates the cache byte budget invariant was violated.
// This is an internal defect to be logged, never surfaced to callers.
type BudgetExceededError struct {
	BudgetBytes int64
	TotalBytes  int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("cache budget exceeded: %d bytes live against budget of %d bytes",
		e.TotalBytes, e.BudgetBytes)
}

// InvalidTransitionError indicates a rejected tab state transition. The tab
// record is left unchanged.
type InvalidTransitionError struct {
	TabID string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for tab '%s': %s -> %s", e.TabID, e.From, e.To)
}

// RetriesExhaustedError indicates a task consumed all its attempts and is
// terminally failed.
type RetriesExhaustedError struct {
	TaskID   string
	Attempts int
	Cause    error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("task '%s' failed after %d attempts: %v", e.TaskID, e.Attempts, e.Cause)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Cause
}

// TaskTimeoutError indicates a task exceeded its max duration. It is a
// retryable failure; the underlying work may still be running and its result
// is discarded.
type TaskTimeoutError struct {
	TaskID      string
	MaxDuration time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task '%s' exceeded max duration of %v", e.TaskID, e.MaxDuration)
}

// Error constructors

func NewMonitorUnavailableError(failures int, cause error) *MonitorUnavailableError {
	return &MonitorUnavailableError{ConsecutiveFailures: failures, Cause: cause}
}

func NewBudgetExceededError(budget, total int64) *BudgetExceededError {
	return &BudgetExceededError{BudgetBytes: budget, TotalBytes: total}
}

func NewInvalidTransitionError(tabID, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{TabID: tabID, From: from, To: to}
}

func NewRetriesExhaustedError(taskID string, attempts int, cause error) *RetriesExhaustedError {
	return &RetriesExhaustedError{TaskID: taskID, Attempts: attempts, Cause: cause}
}

func NewTaskTimeoutError(taskID string, maxDuration time.Duration) *TaskTimeoutError {
	return &TaskTimeoutError{TaskID: taskID, MaxDuration: maxDuration}
}
