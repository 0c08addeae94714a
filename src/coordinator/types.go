package coordinator

import (
	"context"
	"time"

	"browser-engine/src/monitor"
	"browser-engine/src/scheduler"
)

// TabHost exposes the host browser's suspend/restore primitives. These may
// block on OS calls, so the engine invokes them only inside scheduler task
// bodies.
type TabHost interface {
	SuspendTab(ctx context.Context, tabID string) error
	RestoreTab(ctx context.Context, tabID string) error
}

// Fetcher performs the actual prefetch network work. Invoked only inside
// scheduler task bodies.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

// NoopTabHost satisfies TabHost without touching a real browser. Used in
// tests and standalone runs.
type NoopTabHost struct{}

func (NoopTabHost) SuspendTab(ctx context.Context, tabID string) error { return ctx.Err() }
func (NoopTabHost) RestoreTab(ctx context.Context, tabID string) error { return ctx.Err() }

// NoopFetcher satisfies Fetcher without network access
type NoopFetcher struct{}

func (NoopFetcher) Fetch(ctx context.Context, url string) error { return ctx.Err() }

// Session is the explicit per-user context object. All per-session memory
// lives here instead of in package-level state.
type Session struct {
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	LastURL         string    `json:"last_url,omitempty"`
	NavigationCount int64     `json:"navigation_count"`
}

// TabSnapshot is the caller-supplied view of a tab used by the memory
// management facade
type TabSnapshot struct {
	TabID            string `json:"tab_id"`
	MemoryUsageBytes int64  `json:"memory_usage_bytes"`
	IsPinned         bool   `json:"is_pinned"`
	IsActive         bool   `json:"is_active"`
}

// CachingResult is the outcome of a predictive caching pass
type CachingResult struct {
	CacheAdmissions     []string `json:"cache_admissions"`
	CacheHitProbability float64  `json:"cache_hit_probability"`
	Strategy            string   `json:"strategy"`
}

// MemoryResult is the outcome of a memory management pass
type MemoryResult struct {
	SuspendedTabIDs     []string `json:"suspended_tab_ids"`
	RestorationTriggers []string `json:"restoration_triggers"`
	FreedBytesEstimate  int64    `json:"freed_bytes_estimate"`
}

// TaskDescriptor describes ad-hoc background work submitted through the
// facade
type TaskDescriptor struct {
	Kind     string            `json:"kind"`
	Priority string            `json:"priority"`
	Payload  map[string]string `json:"payload,omitempty"`
}

// ProcessingResult is the acknowledgement for submitted background work
type ProcessingResult struct {
	TaskID              string    `json:"task_id"`
	Priority            string    `json:"priority"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
}

// MonitoringResult is the performance monitoring report
type MonitoringResult struct {
	ResourceSnapshot  monitor.ResourceSnapshot `json:"resource_snapshot"`
	Recommendations   []string                 `json:"recommendations"`
	ActiveTaskSummary scheduler.Summary        `json:"active_task_summary"`
}
