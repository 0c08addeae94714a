package scheduler

import (
	"context"
	"time"
)

// Priority orders tasks across tiers. Higher tiers always run first, even
// when submitted later; within a tier, submission order is preserved.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// TaskState is the lifecycle state of a scheduled task
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// TaskFunc is a task body. It must poll ctx at safe points; cancellation is
// cooperative only and the scheduler never force-kills work.
type TaskFunc func(ctx context.Context) error

// CompletionFunc receives the terminal outcome of a task. err is nil on
// success, a RetriesExhaustedError when attempts ran out, or
// context.Canceled when the task was cancelled.
type CompletionFunc func(taskID string, err error)

// TaskSpec describes work to submit
type TaskSpec struct {
	Kind        string
	Priority    Priority
	Run         TaskFunc
	MaxAttempts int           // 0 means the scheduler default
	MaxDuration time.Duration // 0 means the scheduler default
	OnComplete  CompletionFunc
}

// TaskStatus is a point-in-time view of a task
type TaskStatus struct {
	TaskID       string    `json:"task_id"`
	Kind         string    `json:"kind"`
	Priority     string    `json:"priority"`
	State        TaskState `json:"state"`
	AttemptCount int       `json:"attempt_count"`
	MaxAttempts  int       `json:"max_attempts"`
	NextRunAt    time.Time `json:"next_run_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Summary aggregates scheduler activity for monitoring
type Summary struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
