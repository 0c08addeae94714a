package tabs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"browser-engine/src/config"
	"browser-engine/src/internal/common"
	"browser-engine/src/internal/errors"
	"browser-engine/src/monitor"
)

// TabResourceManager drives the per-tab suspension state machine. Valid
// transitions are Active -> Suspended -> Restoring -> Active, with
// Restoring -> Suspended on restore failure. Everything else is rejected
// as a no-op.
type TabResourceManager struct {
	records map[string]*TabRecord
	cfg     *config.TabConfig
	mu      sync.RWMutex
	now     func() time.Time
}

// NewTabResourceManager creates a manager. A nil config falls back to
// defaults.
func NewTabResourceManager(cfg *config.TabConfig) *TabResourceManager {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Tabs
	}
	return &TabResourceManager{
		records: make(map[string]*TabRecord),
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetTuning applies reloaded tuning parameters
func (m *TabResourceManager) SetTuning(idleThreshold time.Duration, maxSuspensions int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idleThreshold > 0 {
		m.cfg.IdleThreshold = idleThreshold
	}
	if maxSuspensions > 0 {
		m.cfg.MaxSuspensions = maxSuspensions
	}
}

// MaxSuspensions returns the configured per-pass suspension limit
func (m *TabResourceManager) MaxSuspensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.MaxSuspensions
}

// RegisterTab adds a tab in the Active state. Registering an existing tab
// only updates its pinned flag.
func (m *TabResourceManager) RegisterTab(tabID string, isPinned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[tabID]; ok {
		record.IsPinned = isPinned
		return
	}

	m.records[tabID] = &TabRecord{
		TabID:        tabID,
		IsPinned:     isPinned,
		IsActive:     true,
		LastActiveAt: m.now(),
		State:        TabActive,
	}
}

// UnregisterTab removes a closed tab
func (m *TabResourceManager) UnregisterTab(tabID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tabID)
}

// Tick updates a tab's resource usage and activity. An active tick refreshes
// LastActiveAt.
func (m *TabResourceManager) Tick(tabID string, memoryUsage int64, isActive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[tabID]
	if !ok {
		return fmt.Errorf("unknown tab '%s'", tabID)
	}

	record.MemoryUsageBytes = memoryUsage
	record.IsActive = isActive
	if isActive {
		record.LastActiveAt = m.now()
	}
	return nil
}

// Get returns a copy of a tab record
func (m *TabResourceManager) Get(tabID string) (TabRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[tabID]
	if !ok {
		return TabRecord{}, false
	}
	return *record, true
}

// Records returns copies of all tab records
func (m *TabResourceManager) Records() []TabRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TabRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, *record)
	}
	return out
}

// EvaluateSuspensionCandidates returns tab IDs eligible for suspension,
// ordered by memory usage descending with ties broken by oldest
// LastActiveAt. Pinned and active tabs are never included; callers re-check
// eligibility before acting. Returns nil below High pressure.
func (m *TabResourceManager) EvaluateSuspensionCandidates(pressure monitor.PressureLevel) []string {
	if pressure < monitor.PressureHigh {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	eligible := make([]*TabRecord, 0, len(m.records))
	for _, record := range m.records {
		if record.State != TabActive {
			continue
		}
		if record.IsPinned || record.IsActive {
			continue
		}
		if now.Sub(record.LastActiveAt) <= m.cfg.IdleThreshold {
			continue
		}
		eligible = append(eligible, record)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].MemoryUsageBytes != eligible[j].MemoryUsageBytes {
			return eligible[i].MemoryUsageBytes > eligible[j].MemoryUsageBytes
		}
		return eligible[i].LastActiveAt.Before(eligible[j].LastActiveAt)
	})

	ids := make([]string, len(eligible))
	for i, record := range eligible {
		ids[i] = record.TabID
	}
	return ids
}

// FreedBytesEstimate sums the memory footprint of the given tabs
func (m *TabResourceManager) FreedBytesEstimate(tabIDs []string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, id := range tabIDs {
		if record, ok := m.records[id]; ok {
			total += record.MemoryUsageBytes
		}
	}
	return total
}

// MarkSuspended transitions a tab to Suspended. Valid from Active (pinned
// and currently-active tabs are refused) and from Restoring, where it
// records a restore failure by flagging the tab for reload.
func (m *TabResourceManager) MarkSuspended(tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[tabID]
	if !ok {
		return fmt.Errorf("unknown tab '%s'", tabID)
	}

	switch record.State {
	case TabSuspended:
		return nil
	case TabActive:
		if record.IsPinned || record.IsActive {
			return errors.NewInvalidTransitionError(tabID, string(record.State), string(TabSuspended))
		}
		record.State = TabSuspended
		return nil
	case TabRestoring:
		// Restore failure: the tab stays suspended and the user is told
		// to reload rather than the tab silently vanishing
		record.State = TabSuspended
		record.NeedsReload = true
		common.TabLogger.Warn("Restore failed for tab '%s', flagged for reload", tabID)
		return nil
	default:
		return errors.NewInvalidTransitionError(tabID, string(record.State), string(TabSuspended))
	}
}

// MarkRestoring transitions a Suspended tab to Restoring, typically on a
// navigation or interaction event referencing it
func (m *TabResourceManager) MarkRestoring(tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[tabID]
	if !ok {
		return fmt.Errorf("unknown tab '%s'", tabID)
	}

	switch record.State {
	case TabRestoring:
		return nil
	case TabSuspended:
		record.State = TabRestoring
		return nil
	default:
		return errors.NewInvalidTransitionError(tabID, string(record.State), string(TabRestoring))
	}
}

// MarkActive completes a restore. Calling it on an already-Active tab is an
// idempotent no-op.
func (m *TabResourceManager) MarkActive(tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[tabID]
	if !ok {
		return fmt.Errorf("unknown tab '%s'", tabID)
	}

	switch record.State {
	case TabActive:
		return nil
	case TabRestoring:
		record.State = TabActive
		record.NeedsReload = false
		record.LastActiveAt = m.now()
		return nil
	default:
		return errors.NewInvalidTransitionError(tabID, string(record.State), string(TabActive))
	}
}
