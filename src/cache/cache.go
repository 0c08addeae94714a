package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"browser-engine/src/config"
	"browser-engine/src/internal/common"
	"browser-engine/src/internal/constants"
	"browser-engine/src/internal/errors"
)

// PredictiveCache is an admission-controlled, budget-bounded store of
// prefetch candidates. Admissions are serialized under a single writer lock
// so concurrent admits can never overshoot the byte budget.
type PredictiveCache struct {
	entries map[string]*CacheEntry
	cfg     *config.CacheConfig
	stats   CacheStats
	mu      sync.RWMutex
	started bool
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPredictiveCache creates a cache with the given config. A nil config
// falls back to defaults.
func NewPredictiveCache(cfg *config.CacheConfig) *PredictiveCache {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Cache
	}
	return &PredictiveCache{
		entries: make(map[string]*CacheEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Start launches the periodic expiry sweep
func (c *PredictiveCache) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("predictive cache already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.sweepLoop()

	c.started = true
	return nil
}

// Stop shuts down the sweep loop
func (c *PredictiveCache) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// SetTuning applies reloaded tuning parameters. The byte budget is fixed
// for the life of the cache; shrinking it live would force a mass eviction.
func (c *PredictiveCache) SetTuning(admissionThreshold float64, entryTTL time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if admissionThreshold >= 0 && admissionThreshold <= 1 {
		c.cfg.AdmissionThreshold = admissionThreshold
	}
	if entryTTL > 0 {
		c.cfg.EntryTTL = entryTTL
	}
}

// BudgetBytes returns the configured byte budget
func (c *PredictiveCache) BudgetBytes() int64 {
	return int64(c.cfg.BudgetMB) * 1024 * 1024
}

// Admit decides whether a candidate enters the cache. It rejects candidates
// below the admission threshold, and candidates the budget cannot hold even
// after evicting every strictly-lower-scored entry. Admit never blocks on
// I/O; the actual fetch is the caller's responsibility.
func (c *PredictiveCache) Admit(candidate Candidate) AdmissionResult {
	if candidate.EstimatedSize <= 0 {
		return AdmissionResult{Admitted: false, Reason: RejectInvalidSize}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if candidate.Probability < c.cfg.AdmissionThreshold {
		c.stats.RejectionCount++
		return AdmissionResult{Admitted: false, Reason: RejectBelowThreshold}
	}

	now := c.now()
	budget := c.BudgetBytes()
	candidateScore := c.score(candidate.Probability, now, now)

	hash := hashURL(candidate.URL)
	free := budget - c.totalSizeLocked()
	if existing, ok := c.entries[hash]; ok {
		// Re-admission replaces the old entry, so its bytes count as free
		free += existing.EstimatedSize
	}

	var evicted []string
	if candidate.EstimatedSize > free {
		needed := candidate.EstimatedSize - free
		victims, freeable := c.collectVictims(candidateScore, now, hash)
		if freeable < needed {
			c.stats.RejectionCount++
			return AdmissionResult{Admitted: false, Reason: RejectBudgetExhausted}
		}
		var reclaimed int64
		for _, victim := range victims {
			if reclaimed >= needed {
				break
			}
			reclaimed += victim.EstimatedSize
			c.removeLocked(victim.URLHash)
			evicted = append(evicted, victim.URL)
		}
	}

	if existing, ok := c.entries[hash]; ok {
		delete(c.entries, hash)
		c.stats.TotalSize -= existing.EstimatedSize
	}

	entry := &CacheEntry{
		URLHash:        hash,
		URL:            candidate.URL,
		EstimatedSize:  candidate.EstimatedSize,
		Probability:    candidate.Probability,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            c.cfg.EntryTTL,
		State:          EntryPending,
	}
	c.entries[hash] = entry
	c.stats.TotalSize += entry.EstimatedSize
	c.stats.EntryCount = int64(len(c.entries))
	c.stats.AdmissionCount++
	c.checkBudgetInvariant()

	return AdmissionResult{Admitted: true, EvictedURLs: evicted}
}

// Lookup returns a copy of the entry for the URL. A hit refreshes the access
// time, sliding the TTL window. Expired entries are removed and reported as
// misses.
func (c *PredictiveCache) Lookup(url string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := hashURL(url)
	entry, ok := c.entries[hash]
	if !ok {
		c.stats.MissCount++
		return CacheEntry{}, false
	}

	now := c.now()
	if c.isExpired(entry, now) {
		c.removeLocked(hash)
		c.stats.MissCount++
		return CacheEntry{}, false
	}

	entry.LastAccessedAt = now
	c.stats.HitCount++
	return *entry, true
}

// MarkFetched records a successful prefetch for an admitted entry
func (c *PredictiveCache) MarkFetched(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[hashURL(url)]; ok && entry.State == EntryPending {
		entry.State = EntryFetched
	}
}

// MarkFetchFailed evicts an admitted-but-unfetched entry after its prefetch
// failed. Retrying is the caller's responsibility via the scheduler.
func (c *PredictiveCache) MarkFetchFailed(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := hashURL(url)
	if entry, ok := c.entries[hash]; ok && entry.State == EntryPending {
		c.removeLocked(hash)
		common.CacheLogger.Debug("Evicted %s after fetch failure", entry.URL)
	}
}

// EvictExpired removes every TTL-expired entry regardless of score and
// returns the number removed
func (c *PredictiveCache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for hash, entry := range c.entries {
		if c.isExpired(entry, now) {
			c.removeLocked(hash)
			removed++
		}
	}
	return removed
}

// Entries returns copies of all live entries
func (c *PredictiveCache) Entries() []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, *entry)
	}
	return out
}

// Stats returns a copy of the cumulative counters
func (c *PredictiveCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.TotalSize = c.totalSizeLocked()
	stats.EntryCount = int64(len(c.entries))
	return stats
}

// HitProbability estimates the chance a random lookup hits, from the mean
// probability of live entries
func (c *PredictiveCache) HitProbability() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.entries) == 0 {
		return 0
	}
	var sum float64
	for _, entry := range c.entries {
		sum += entry.Probability
	}
	return sum / float64(len(c.entries))
}

// Clear removes all entries
func (c *PredictiveCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.stats.TotalSize = 0
	c.stats.EntryCount = 0
}

func (c *PredictiveCache) sweepLoop() {
	defer c.wg.Done()

	interval := c.cfg.SweepInterval
	if interval <= 0 {
		interval = constants.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if removed := c.EvictExpired(); removed > 0 {
				common.CacheLogger.Debug("Expiry sweep removed %d entries", removed)
			}
		}
	}
}

// victim is an eviction candidate with its current score
type victim struct {
	*CacheEntry
	score float64
}

// collectVictims returns entries scored strictly below the candidate score,
// ordered lowest score first with ties broken by oldest access time, along
// with the total bytes they would free
func (c *PredictiveCache) collectVictims(candidateScore float64, now time.Time, excludeHash string) ([]victim, int64) {
	victims := make([]victim, 0, len(c.entries))
	var freeable int64
	for hash, entry := range c.entries {
		if hash == excludeHash {
			continue
		}
		entryScore := c.score(entry.Probability, entry.LastAccessedAt, now)
		if entryScore < candidateScore {
			victims = append(victims, victim{CacheEntry: entry, score: entryScore})
			freeable += entry.EstimatedSize
		}
	}

	sort.Slice(victims, func(i, j int) bool {
		if victims[i].score != victims[j].score {
			return victims[i].score < victims[j].score
		}
		return victims[i].LastAccessedAt.Before(victims[j].LastAccessedAt)
	})

	return victims, freeable
}

// score combines prediction probability with an access-recency factor
func (c *PredictiveCache) score(probability float64, lastAccessed, now time.Time) float64 {
	age := now.Sub(lastAccessed).Seconds()
	if age < 0 {
		age = 0
	}
	recency := 1.0 / (1.0 + age/constants.RecencyHalfLifeSeconds)
	return probability*constants.ScoreProbabilityWeight + recency*constants.ScoreRecencyWeight
}

func (c *PredictiveCache) isExpired(entry *CacheEntry, now time.Time) bool {
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = constants.DefaultEntryTTL
	}
	return now.Sub(entry.LastAccessedAt) > ttl
}

func (c *PredictiveCache) removeLocked(hash string) {
	entry, ok := c.entries[hash]
	if !ok {
		return
	}
	entry.State = EntryEvicted
	delete(c.entries, hash)
	c.stats.TotalSize -= entry.EstimatedSize
	c.stats.EntryCount = int64(len(c.entries))
	c.stats.EvictionCount++
}

func (c *PredictiveCache) totalSizeLocked() int64 {
	var total int64
	for _, entry := range c.entries {
		total += entry.EstimatedSize
	}
	return total
}

// checkBudgetInvariant logs a defect if live entries ever exceed the budget.
// This must never fire; it is not surfaced to callers.
func (c *PredictiveCache) checkBudgetInvariant() {
	total := c.totalSizeLocked()
	if budget := c.BudgetBytes(); total > budget {
		common.CacheLogger.Error("Invariant violation: %v", errors.NewBudgetExceededError(budget, total))
	}
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", sum)
}
