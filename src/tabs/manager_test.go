package tabs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browser-engine/src/config"
	"browser-engine/src/internal/errors"
	"browser-engine/src/monitor"
)

func testManager() *TabResourceManager {
	return NewTabResourceManager(&config.TabConfig{
		IdleThreshold:  300 * time.Second,
		MaxSuspensions: 5,
	})
}

// idleTab registers a tab and backdates its last activity past the idle
// threshold
func idleTab(m *TabResourceManager, tabID string, memBytes int64, pinned bool, idleFor time.Duration) {
	m.RegisterTab(tabID, pinned)
	_ = m.Tick(tabID, memBytes, false)
	m.mu.Lock()
	m.records[tabID].LastActiveAt = time.Now().Add(-idleFor)
	m.mu.Unlock()
}

func TestEvaluateSuspensionCandidatesOrdering(t *testing.T) {
	m := testManager()

	idleTab(m, "tab-small", 50<<20, false, 10*time.Minute)
	idleTab(m, "tab-large", 300<<20, false, 10*time.Minute)
	idleTab(m, "tab-medium", 120<<20, false, 10*time.Minute)
	idleTab(m, "tab-pinned-1", 500<<20, true, 10*time.Minute)
	idleTab(m, "tab-pinned-2", 400<<20, true, 10*time.Minute)

	candidates := m.EvaluateSuspensionCandidates(monitor.PressureHigh)
	assert.Equal(t, []string{"tab-large", "tab-medium", "tab-small"}, candidates)
}

func TestEvaluateSuspensionCandidatesBelowHighPressure(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)

	assert.Nil(t, m.EvaluateSuspensionCandidates(monitor.PressureLow))
	assert.Nil(t, m.EvaluateSuspensionCandidates(monitor.PressureMedium))
	assert.NotEmpty(t, m.EvaluateSuspensionCandidates(monitor.PressureCritical))
}

func TestEvaluateSuspensionCandidatesSkipsActiveAndRecent(t *testing.T) {
	m := testManager()

	// Active tab
	m.RegisterTab("tab-active", false)
	require.NoError(t, m.Tick("tab-active", 200<<20, true))

	// Idle but under the threshold
	idleTab(m, "tab-recent", 200<<20, false, time.Minute)

	// Properly idle
	idleTab(m, "tab-idle", 100<<20, false, 10*time.Minute)

	candidates := m.EvaluateSuspensionCandidates(monitor.PressureHigh)
	assert.Equal(t, []string{"tab-idle"}, candidates)
}

func TestEvaluateSuspensionCandidatesTieBreakByOldestActivity(t *testing.T) {
	m := testManager()

	idleTab(m, "tab-newer", 100<<20, false, 6*time.Minute)
	idleTab(m, "tab-older", 100<<20, false, 20*time.Minute)

	candidates := m.EvaluateSuspensionCandidates(monitor.PressureHigh)
	assert.Equal(t, []string{"tab-older", "tab-newer"}, candidates)
}

func TestPinnedTabNeverSuspended(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-pinned", 100<<20, true, time.Hour)

	// Not a candidate
	assert.Empty(t, m.EvaluateSuspensionCandidates(monitor.PressureCritical))

	// Direct transition is refused too
	err := m.MarkSuspended("tab-pinned")
	require.Error(t, err)
	var transitionErr *errors.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)

	record, ok := m.Get("tab-pinned")
	require.True(t, ok)
	assert.Equal(t, TabActive, record.State)
}

func TestSuspendRestoreLifecycle(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)

	require.NoError(t, m.MarkSuspended("tab-1"))
	record, _ := m.Get("tab-1")
	assert.Equal(t, TabSuspended, record.State)

	require.NoError(t, m.MarkRestoring("tab-1"))
	record, _ = m.Get("tab-1")
	assert.Equal(t, TabRestoring, record.State)

	require.NoError(t, m.MarkActive("tab-1"))
	record, _ = m.Get("tab-1")
	assert.Equal(t, TabActive, record.State)
	assert.False(t, record.NeedsReload)
}

func TestRestoreFailureFlagsReload(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)

	require.NoError(t, m.MarkSuspended("tab-1"))
	require.NoError(t, m.MarkRestoring("tab-1"))

	// Restore failed: back to Suspended, flagged for the user
	require.NoError(t, m.MarkSuspended("tab-1"))
	record, _ := m.Get("tab-1")
	assert.Equal(t, TabSuspended, record.State)
	assert.True(t, record.NeedsReload)

	// A later successful restore clears the flag
	require.NoError(t, m.MarkRestoring("tab-1"))
	require.NoError(t, m.MarkActive("tab-1"))
	record, _ = m.Get("tab-1")
	assert.False(t, record.NeedsReload)
}

func TestMarkActiveIdempotent(t *testing.T) {
	m := testManager()
	m.RegisterTab("tab-1", false)

	require.NoError(t, m.MarkActive("tab-1"))
	require.NoError(t, m.MarkActive("tab-1"))

	record, _ := m.Get("tab-1")
	assert.Equal(t, TabActive, record.State)
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(m *TabResourceManager)
		call    func(m *TabResourceManager) error
	}{
		{
			name:    "Active to Restoring",
			prepare: func(m *TabResourceManager) {},
			call:    func(m *TabResourceManager) error { return m.MarkRestoring("tab-1") },
		},
		{
			name: "Suspended to Active without Restoring",
			prepare: func(m *TabResourceManager) {
				require.NoError(t, m.MarkSuspended("tab-1"))
			},
			call: func(m *TabResourceManager) error { return m.MarkActive("tab-1") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager()
			idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)
			tt.prepare(m)

			before, _ := m.Get("tab-1")
			err := tt.call(m)

			var transitionErr *errors.InvalidTransitionError
			require.ErrorAs(t, err, &transitionErr)

			// Rejected transitions leave state unchanged
			after, _ := m.Get("tab-1")
			assert.Equal(t, before.State, after.State)
		})
	}
}

func TestUnknownTabErrors(t *testing.T) {
	m := testManager()

	assert.Error(t, m.Tick("ghost", 0, false))
	assert.Error(t, m.MarkSuspended("ghost"))
	assert.Error(t, m.MarkRestoring("ghost"))
	assert.Error(t, m.MarkActive("ghost"))
}

func TestFreedBytesEstimate(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)
	idleTab(m, "tab-2", 50<<20, false, 10*time.Minute)

	assert.Equal(t, int64(150<<20), m.FreedBytesEstimate([]string{"tab-1", "tab-2"}))
	assert.Equal(t, int64(100<<20), m.FreedBytesEstimate([]string{"tab-1", "ghost"}))
}

func TestRegisterExistingTabUpdatesPinnedOnly(t *testing.T) {
	m := testManager()
	idleTab(m, "tab-1", 100<<20, false, 10*time.Minute)
	require.NoError(t, m.MarkSuspended("tab-1"))

	m.RegisterTab("tab-1", true)

	record, _ := m.Get("tab-1")
	assert.True(t, record.IsPinned)
	assert.Equal(t, TabSuspended, record.State)
}
