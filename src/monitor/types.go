package monitor

import "time"

// PressureLevel is a coarse classification of system resource scarcity
type PressureLevel int

const (
	PressureLow PressureLevel = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

var pressureLevelNames = map[PressureLevel]string{
	PressureLow:      "low",
	PressureMedium:   "medium",
	PressureHigh:     "high",
	PressureCritical: "critical",
}

func (p PressureLevel) String() string {
	if name, ok := pressureLevelNames[p]; ok {
		return name
	}
	return "unknown"
}

// ResourceSnapshot is an immutable point-in-time view of system resource
// usage and its derived pressure level
type ResourceSnapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	MemoryUsedPct float64       `json:"memory_used_pct"`
	CPUUsedPct    float64       `json:"cpu_used_pct"`
	PressureLevel PressureLevel `json:"pressure_level"`
	Stale         bool          `json:"stale,omitempty"`
}

// Sampler reads raw memory and CPU utilization percentages. Implementations
// must be safe for repeated calls from a single goroutine.
type Sampler interface {
	Read() (memoryPct float64, cpuPct float64, err error)
}
