package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browser-engine/src/config"
	"browser-engine/src/internal/errors"
)

// stubSampler returns scripted readings in order, repeating the last one
type stubSampler struct {
	mu       sync.Mutex
	readings []stubReading
	index    int
}

type stubReading struct {
	mem float64
	cpu float64
	err error
}

func (s *stubSampler) Read() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.readings) == 0 {
		return 0, 0, fmt.Errorf("no readings")
	}
	r := s.readings[s.index]
	if s.index < len(s.readings)-1 {
		s.index++
	}
	return r.mem, r.cpu, r.err
}

func testMonitorConfig() *config.MonitorConfig {
	return &config.MonitorConfig{
		SampleInterval:    10 * time.Millisecond,
		MediumThreshold:   70,
		HighThreshold:     85,
		CriticalThreshold: 95,
	}
}

func TestClassifyPressureLevels(t *testing.T) {
	tests := []struct {
		name     string
		mem      float64
		cpu      float64
		expected PressureLevel
	}{
		{"idle system", 10, 5, PressureLow},
		{"just below medium", 69.9, 0, PressureLow},
		{"medium boundary is inclusive", 70, 0, PressureMedium},
		{"medium range", 80, 40, PressureMedium},
		{"high boundary is inclusive", 85, 0, PressureHigh},
		{"high range", 90, 50, PressureHigh},
		{"critical boundary stays high", 95, 0, PressureHigh},
		{"above critical", 95.1, 0, PressureCritical},
		{"cpu drives classification", 20, 92, PressureHigh},
		{"max of the two dimensions wins", 72, 96, PressureCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := &stubSampler{readings: []stubReading{{mem: tt.mem, cpu: tt.cpu}}}
			m := NewResourceMonitor(sampler, testMonitorConfig())

			snapshot, err := m.Sample()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, snapshot.PressureLevel)
			assert.False(t, snapshot.Stale)
		})
	}
}

func TestSampleFailureReturnsStaleSnapshot(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{
		{mem: 80, cpu: 20},
		{err: fmt.Errorf("proc read failed")},
	}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	first, err := m.Sample()
	require.NoError(t, err)
	assert.Equal(t, PressureMedium, first.PressureLevel)

	second, err := m.Sample()
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.Equal(t, first.PressureLevel, second.PressureLevel)
	assert.Equal(t, first.MemoryUsedPct, second.MemoryUsedPct)
}

func TestMonitorUnavailableAfterConsecutiveFailures(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{err: fmt.Errorf("proc read failed")}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	for i := 0; i < 2; i++ {
		_, err := m.Sample()
		require.NoError(t, err)
	}

	_, err := m.Sample()
	var unavailable *errors.MonitorUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.ConsecutiveFailures)
}

func TestSuccessfulReadResetsFailureCount(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{
		{err: fmt.Errorf("transient")},
		{err: fmt.Errorf("transient")},
		{mem: 50, cpu: 10},
		{err: fmt.Errorf("transient")},
	}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	_, err := m.Sample()
	require.NoError(t, err)
	_, err = m.Sample()
	require.NoError(t, err)
	_, err = m.Sample()
	require.NoError(t, err)

	// A single failure after a good read must not trip unavailability
	snapshot, err := m.Sample()
	require.NoError(t, err)
	assert.True(t, snapshot.Stale)
}

func TestEffectivePressureDegradesToMedium(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{err: fmt.Errorf("proc read failed")}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	// Drive past the failure limit so Sample starts erroring
	m.Sample()
	m.Sample()
	m.Sample()

	assert.Equal(t, PressureMedium, m.EffectivePressure())
}

func TestEffectivePressureReflectsCurrentReading(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{mem: 90, cpu: 10}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	assert.Equal(t, PressureHigh, m.EffectivePressure())
}

func TestLastKnownBeforeAnySample(t *testing.T) {
	m := NewResourceMonitor(&stubSampler{}, testMonitorConfig())

	_, ok := m.LastKnown()
	assert.False(t, ok)
}

func TestSetThresholdsRejectsNonIncreasing(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{mem: 80, cpu: 0}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	m.SetThresholds(90, 85, 95)

	snapshot, err := m.Sample()
	require.NoError(t, err)
	assert.Equal(t, PressureMedium, snapshot.PressureLevel, "old thresholds should remain in effect")
}

func TestSetThresholdsApplied(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{mem: 80, cpu: 0}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	m.SetThresholds(50, 75, 90)

	snapshot, err := m.Sample()
	require.NoError(t, err)
	assert.Equal(t, PressureHigh, snapshot.PressureLevel)
}

func TestSubscriberNotifiedOnPressureChange(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{
		{mem: 10, cpu: 5},
		{mem: 90, cpu: 20},
	}}
	m := NewResourceMonitor(sampler, testMonitorConfig())
	m.SetDebounceDelay(20 * time.Millisecond)

	notified := make(chan ResourceSnapshot, 8)
	m.Subscribe(func(s ResourceSnapshot) {
		notified <- s
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	var last ResourceSnapshot
	deadline := time.After(2 * time.Second)
	for last.PressureLevel != PressureHigh {
		select {
		case last = <-notified:
		case <-deadline:
			t.Fatal("no high-pressure notification received")
		}
	}
	assert.Equal(t, PressureHigh, last.PressureLevel)
}

func TestDebounceSuppressesFlappingReadings(t *testing.T) {
	// Readings flap between Low and High faster than the debounce window;
	// the subscriber should settle on the final level without a
	// notification for every flip.
	sampler := &stubSampler{readings: []stubReading{
		{mem: 10, cpu: 5},
		{mem: 90, cpu: 5},
		{mem: 10, cpu: 5},
		{mem: 90, cpu: 5},
		{mem: 90, cpu: 5},
	}}
	m := NewResourceMonitor(sampler, testMonitorConfig())
	m.SetDebounceDelay(100 * time.Millisecond)

	var mu sync.Mutex
	var levels []PressureLevel
	m.Subscribe(func(s ResourceSnapshot) {
		mu.Lock()
		levels = append(levels, s.PressureLevel)
		mu.Unlock()
	})

	require.NoError(t, m.Start(context.Background()))
	time.Sleep(400 * time.Millisecond)
	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, levels)
	assert.Equal(t, PressureHigh, levels[len(levels)-1])
	assert.LessOrEqual(t, len(levels), 2)
}

func TestStartTwiceErrors(t *testing.T) {
	sampler := &stubSampler{readings: []stubReading{{mem: 10, cpu: 5}}}
	m := NewResourceMonitor(sampler, testMonitorConfig())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Error(t, m.Start(context.Background()))
}
