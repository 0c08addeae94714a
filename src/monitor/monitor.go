package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"browser-engine/src/config"
	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
	"browser-engine/src/internal/errors"
)

// PressureCallback receives a snapshot whenever the pressure level changes
type PressureCallback func(ResourceSnapshot)

// ResourceMonitor samples system memory/CPU on a fixed interval and notifies
// subscribers on pressure-level changes. Notifications are debounced so a
// flapping reading does not thrash downstream consumers.
type ResourceMonitor struct {
	sampler       Sampler
	cfg           *config.MonitorConfig
	debounceDelay time.Duration

	mu           sync.RWMutex
	lastSnapshot ResourceSnapshot
	hasSnapshot  bool
	failures     int
	subscribers  []PressureCallback
	lastNotified PressureLevel
	notifiedOnce bool
	started      bool

	pendingMutex  sync.Mutex
	debounceTimer *time.Timer
	pendingLevel  PressureLevel
	pendingArmed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResourceMonitor creates a monitor using the given sampler. A nil config
// falls back to defaults.
func NewResourceMonitor(sampler Sampler, cfg *config.MonitorConfig) *ResourceMonitor {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Monitor
	}
	return &ResourceMonitor{
		sampler:       sampler,
		cfg:           cfg,
		debounceDelay: constants.PressureDebounceDelay,
	}
}

// SetDebounceDelay overrides the notification debounce window
func (m *ResourceMonitor) SetDebounceDelay(d time.Duration) {
	m.debounceDelay = d
}

// SetThresholds applies reloaded pressure thresholds. They must remain
// strictly increasing or the update is ignored.
func (m *ResourceMonitor) SetThresholds(medium, high, critical float64) {
	if !(medium < high && high < critical) {
		common.MonitorLogger.Warn("Ignoring non-increasing pressure thresholds (%.1f, %.1f, %.1f)",
			medium, high, critical)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MediumThreshold = medium
	m.cfg.HighThreshold = high
	m.cfg.CriticalThreshold = critical
}

// Sample reads current utilization and classifies pressure. On a read
// failure it returns the last known snapshot marked stale; after
// MaxConsecutiveReadErrors failures it additionally returns a
// MonitorUnavailableError so dependents can degrade to a Medium assumption.
func (m *ResourceMonitor) Sample() (ResourceSnapshot, error) {
	memPct, cpuPct, err := m.sampler.Read()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.failures++
		snapshot := m.lastSnapshot
		snapshot.Stale = true
		if !m.hasSnapshot {
			snapshot = ResourceSnapshot{
				Timestamp:     time.Now(),
				PressureLevel: PressureMedium,
				Stale:         true,
			}
		}
		if m.failures >= constants.MaxConsecutiveReadErrors {
			return snapshot, errors.NewMonitorUnavailableError(m.failures, err)
		}
		common.MonitorLogger.Warn("Resource read failed (%d consecutive): %v", m.failures, err)
		return snapshot, nil
	}

	m.failures = 0
	snapshot := ResourceSnapshot{
		Timestamp:     time.Now(),
		MemoryUsedPct: memPct,
		CPUUsedPct:    cpuPct,
		PressureLevel: m.classify(max(memPct, cpuPct)),
	}
	m.lastSnapshot = snapshot
	m.hasSnapshot = true

	return snapshot, nil
}

// LastKnown returns the most recent successful snapshot, if any
func (m *ResourceMonitor) LastKnown() (ResourceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSnapshot, m.hasSnapshot
}

// EffectivePressure returns the current pressure level, degrading to the
// conservative Medium assumption when the monitor is unavailable
func (m *ResourceMonitor) EffectivePressure() PressureLevel {
	snapshot, err := m.Sample()
	if err != nil {
		return PressureMedium
	}
	return snapshot.PressureLevel
}

// Subscribe registers a callback invoked on pressure-level change. Must be
// called before Start.
func (m *ResourceMonitor) Subscribe(callback PressureCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, callback)
}

// Start begins the sampling loop
func (m *ResourceMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("resource monitor already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.sampleLoop()

	m.started = true
	common.MonitorLogger.Info("Resource monitor started (interval: %v)", m.cfg.SampleInterval)
	return nil
}

// Stop shuts down the sampling loop
func (m *ResourceMonitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	m.pendingMutex.Lock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.pendingMutex.Unlock()

	common.MonitorLogger.Info("Resource monitor stopped")
	return nil
}

func (m *ResourceMonitor) sampleLoop() {
	defer m.wg.Done()

	interval := m.cfg.SampleInterval
	if interval <= 0 {
		interval = constants.DefaultSampleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := m.Sample()
			if err != nil {
				common.MonitorLogger.Error("Monitor degraded: %v", err)
				continue
			}
			if snapshot.Stale {
				continue
			}
			m.observePressure(snapshot.PressureLevel)
		}
	}
}

// observePressure arms the debounce timer when the level moves away from the
// last notified level. The notification fires only if the change survives
// the debounce window; levels that flap back before it elapses are dropped.
func (m *ResourceMonitor) observePressure(level PressureLevel) {
	m.mu.RLock()
	changed := !m.notifiedOnce || level != m.lastNotified
	m.mu.RUnlock()

	m.pendingMutex.Lock()
	defer m.pendingMutex.Unlock()

	if !changed {
		if m.debounceTimer != nil {
			m.debounceTimer.Stop()
			m.debounceTimer = nil
		}
		m.pendingArmed = false
		return
	}

	// A timer already counting down toward this level keeps its window
	if m.pendingArmed && level == m.pendingLevel {
		return
	}

	m.pendingLevel = level
	m.pendingArmed = true
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(m.debounceDelay, m.notifyPressureChange)
}

func (m *ResourceMonitor) notifyPressureChange() {
	m.pendingMutex.Lock()
	m.pendingArmed = false
	m.pendingMutex.Unlock()

	m.mu.Lock()
	if !m.hasSnapshot {
		m.mu.Unlock()
		return
	}
	snapshot := m.lastSnapshot
	if m.notifiedOnce && snapshot.PressureLevel == m.lastNotified {
		m.mu.Unlock()
		return
	}
	m.lastNotified = snapshot.PressureLevel
	m.notifiedOnce = true
	subscribers := make([]PressureCallback, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	common.MonitorLogger.Info("Pressure level changed to %s (mem: %.1f%%, cpu: %.1f%%)",
		snapshot.PressureLevel, snapshot.MemoryUsedPct, snapshot.CPUUsedPct)

	for _, callback := range subscribers {
		callback(snapshot)
	}
}

func (m *ResourceMonitor) classify(pct float64) PressureLevel {
	switch {
	case pct > m.cfg.CriticalThreshold:
		return PressureCritical
	case pct >= m.cfg.HighThreshold:
		return PressureHigh
	case pct >= m.cfg.MediumThreshold:
		return PressureMedium
	default:
		return PressureLow
	}
}
