package constants

import "time"

// Pressure classification thresholds (percent of the busier of memory/CPU)
const (
	PressureMediumThreshold   = 70.0
	PressureHighThreshold     = 85.0
	PressureCriticalThreshold = 95.0
)

// Resource monitor settings
const (
	DefaultSampleInterval    = 5 * time.Second
	PressureDebounceDelay    = 2 * time.Second
	MaxConsecutiveReadErrors = 3
)

// Cache configuration defaults
const (
	DefaultCacheBudgetMB      = 256
	DefaultAdmissionThreshold = 0.6
	DefaultEntryTTL           = 30 * time.Minute
	DefaultSweepInterval      = 1 * time.Minute

	// Score weighting: probability dominates, recency breaks staleness
	ScoreProbabilityWeight = 0.7
	ScoreRecencyWeight     = 0.3
	RecencyHalfLifeSeconds = 300.0
)

// Tab suspension defaults
const (
	DefaultIdleThreshold  = 300 * time.Second
	DefaultMaxSuspensions = 5
)

// Scheduler defaults
const (
	DefaultWorkerCount     = 4
	DefaultMaxAttempts     = 3
	DefaultBackoffBase     = 1 * time.Second
	DefaultBackoffCap      = 60 * time.Second
	BackoffJitterFraction  = 0.2
	DefaultTaskMaxDuration = 30 * time.Second
)

// HTTP gateway timeouts
const (
	GatewayReadTimeout       = 30 * time.Second
	GatewayWriteTimeout      = 60 * time.Second
	GatewayReadHeaderTimeout = 5 * time.Second
	GatewayIdleTimeout       = 60 * time.Second
	GatewayShutdownTimeout   = 30 * time.Second
)

// Snapshot persistence
const (
	SnapshotSchemaVersion = 1
	CacheSnapshotFileName = "cache_snapshot.ndjson"
	TabSnapshotFileName   = "tab_snapshot.ndjson"
	ConfigWatchDebounce   = 500 * time.Millisecond
)
