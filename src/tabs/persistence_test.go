package tabs

import (
	"bytes"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTabSnapshotRoundTrip(t *testing.T) {
	source := testManager()
	idleTab(source, "tab-1", 100<<20, false, 10*time.Minute)
	idleTab(source, "tab-2", 50<<20, true, time.Minute)
	require.NoError(t, source.MarkSuspended("tab-1"))

	var buf bytes.Buffer
	require.NoError(t, source.Export(&buf))

	restored := testManager()
	require.NoError(t, restored.Import(&buf))

	want := source.Records()
	got := restored.Records()
	require.Len(t, got, len(want))

	sort.Slice(want, func(i, j int) bool { return want[i].TabID < want[j].TabID })
	sort.Slice(got, func(i, j int) bool { return got[i].TabID < got[j].TabID })

	for i := range want {
		assert.Equal(t, want[i].TabID, got[i].TabID)
		assert.Equal(t, want[i].MemoryUsageBytes, got[i].MemoryUsageBytes)
		assert.Equal(t, want[i].IsPinned, got[i].IsPinned)
		assert.Equal(t, want[i].State, got[i].State)
	}
}

func TestImportDowngradesInFlightRestores(t *testing.T) {
	source := testManager()
	idleTab(source, "tab-1", 100<<20, false, 10*time.Minute)
	require.NoError(t, source.MarkSuspended("tab-1"))
	require.NoError(t, source.MarkRestoring("tab-1"))

	var buf bytes.Buffer
	require.NoError(t, source.Export(&buf))

	restored := testManager()
	require.NoError(t, restored.Import(&buf))

	record, ok := restored.Get("tab-1")
	require.True(t, ok)
	assert.Equal(t, TabSuspended, record.State)
	assert.True(t, record.NeedsReload)
}

func TestTabImportRejectsWrongKind(t *testing.T) {
	m := testManager()

	err := m.Import(strings.NewReader(`{"schema_version":1,"kind":"cache"}` + "\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind")
}

func TestTabSaveAndLoadSnapshotFile(t *testing.T) {
	dir := t.TempDir()

	source := testManager()
	idleTab(source, "tab-1", 100<<20, false, 10*time.Minute)
	require.NoError(t, source.SaveSnapshot(dir))

	restored := testManager()
	require.NoError(t, restored.LoadSnapshot(dir))

	record, ok := restored.Get("tab-1")
	require.True(t, ok)
	assert.Equal(t, int64(100<<20), record.MemoryUsageBytes)
}

func TestTabLoadSnapshotMissingFileStartsCold(t *testing.T) {
	m := testManager()
	require.NoError(t, m.LoadSnapshot(t.TempDir()))
	assert.Empty(t, m.Records())
}
