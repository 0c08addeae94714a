package cache

import "time"

// EntryState tracks the fetch lifecycle of a cache entry
type EntryState string

const (
	EntryPending EntryState = "pending"
	EntryFetched EntryState = "fetched"
	EntryEvicted EntryState = "evicted"
)

// CacheEntry is a prefetch candidate admitted into the cache. Owned
// exclusively by the PredictiveCache; callers receive copies.
type CacheEntry struct {
	URLHash        string        `json:"url_hash"`
	URL            string        `json:"url"`
	EstimatedSize  int64         `json:"estimated_size_bytes"`
	Probability    float64       `json:"probability"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	TTL            time.Duration `json:"ttl"`
	State          EntryState    `json:"state"`
}

// Candidate is a prefetch admission request
type Candidate struct {
	URL           string
	Probability   float64
	EstimatedSize int64
}

// RejectionReason explains why a candidate was not admitted
type RejectionReason string

const (
	RejectBelowThreshold  RejectionReason = "below_threshold"
	RejectBudgetExhausted RejectionReason = "budget_exhausted"
	RejectInvalidSize     RejectionReason = "invalid_size"
)

// AdmissionResult is the outcome of an Admit call. Rejection is a normal
// control-flow value, not an error.
type AdmissionResult struct {
	Admitted    bool
	Reason      RejectionReason
	EvictedURLs []string
}

// CacheStats holds cumulative cache counters
type CacheStats struct {
	HitCount       int64 `json:"hit_count"`
	MissCount      int64 `json:"miss_count"`
	AdmissionCount int64 `json:"admission_count"`
	RejectionCount int64 `json:"rejection_count"`
	EvictionCount  int64 `json:"eviction_count"`
	TotalSize      int64 `json:"total_size"`
	EntryCount     int64 `json:"entry_count"`
}
