package tabs

import "time"

// TabState is the lifecycle state of a managed tab
type TabState string

const (
	TabActive    TabState = "active"
	TabSuspended TabState = "suspended"
	TabRestoring TabState = "restoring"
)

// TabRecord holds per-tab resource accounting. Owned by the
// TabResourceManager; mutated only through its transition API.
type TabRecord struct {
	TabID            string    `json:"tab_id"`
	MemoryUsageBytes int64     `json:"memory_usage_bytes"`
	IsPinned         bool      `json:"is_pinned"`
	IsActive         bool      `json:"is_active"`
	LastActiveAt     time.Time `json:"last_active_at"`
	State            TabState  `json:"state"`
	NeedsReload      bool      `json:"needs_reload,omitempty"`
}
