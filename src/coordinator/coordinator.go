package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"browser-engine/src/cache"
	"browser-engine/src/config"
	"browser-engine/src/internal/common"
	"browser-engine/src/monitor"
	"browser-engine/src/predictor"
	"browser-engine/src/scheduler"
	"browser-engine/src/tabs"
)

// PerformanceOptimizationCoordinator wires the monitor, cache, tab manager,
// and scheduler into the facade operations the browser UI layer calls.
type PerformanceOptimizationCoordinator struct {
	cfg       *config.Config
	resources *monitor.ResourceMonitor
	prefetch  *cache.PredictiveCache
	tabMgr    *tabs.TabResourceManager
	sched     *scheduler.BackgroundTaskScheduler
	pred      predictor.NavigationPredictor
	host      TabHost
	fetcher   Fetcher

	sessionMu sync.Mutex
	sessions  map[string]*Session

	started bool
	mu      sync.Mutex
}

// Options carries the injectable collaborators
type Options struct {
	Sampler   monitor.Sampler
	Predictor predictor.NavigationPredictor
	Host      TabHost
	Fetcher   Fetcher
}

// NewCoordinator builds the engine from a config, filling in default
// collaborators for any left nil.
func NewCoordinator(cfg *config.Config, opts Options) *PerformanceOptimizationCoordinator {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	if opts.Sampler == nil {
		opts.Sampler = monitor.NewSystemSampler()
	}
	if opts.Predictor == nil {
		opts.Predictor = predictor.NewRulePredictor()
	}
	if opts.Host == nil {
		opts.Host = NoopTabHost{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NoopFetcher{}
	}

	c := &PerformanceOptimizationCoordinator{
		cfg:       cfg,
		resources: monitor.NewResourceMonitor(opts.Sampler, cfg.Monitor),
		prefetch:  cache.NewPredictiveCache(cfg.Cache),
		tabMgr:    tabs.NewTabResourceManager(cfg.Tabs),
		sched:     scheduler.NewBackgroundTaskScheduler(cfg.Scheduler),
		pred:      opts.Predictor,
		host:      opts.Host,
		fetcher:   opts.Fetcher,
		sessions:  make(map[string]*Session),
	}
	return c
}

// Start brings up the scheduler, cache janitor, and monitor, loads warm
// snapshots if present, and subscribes to pressure changes
func (c *PerformanceOptimizationCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("coordinator already started")
	}

	if err := c.sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := c.prefetch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache: %w", err)
	}

	if c.cfg.Cache.StoragePath != "" {
		if err := c.prefetch.LoadSnapshot(); err != nil {
			common.CoordinatorLogger.Warn("Failed to load cache snapshot: %v", err)
		}
		if err := c.tabMgr.LoadSnapshot(c.cfg.Cache.StoragePath); err != nil {
			common.CoordinatorLogger.Warn("Failed to load tab snapshot: %v", err)
		}
	}

	// The pressure reaction runs as a scheduler task so the monitor's own
	// loop is never blocked by downstream work
	c.resources.Subscribe(func(snapshot monitor.ResourceSnapshot) {
		_, err := c.sched.Submit(scheduler.TaskSpec{
			Kind:     "pressure-reaction",
			Priority: scheduler.PriorityHigh,
			Run: func(taskCtx context.Context) error {
				c.reactToPressure(taskCtx, snapshot)
				return nil
			},
		})
		if err != nil {
			common.CoordinatorLogger.Error("Failed to dispatch pressure reaction: %v", err)
		}
	})

	if err := c.resources.Start(ctx); err != nil {
		return fmt.Errorf("failed to start resource monitor: %w", err)
	}

	c.started = true
	common.CoordinatorLogger.Info("Coordinator started")
	return nil
}

// Stop shuts components down and persists warm-start snapshots
func (c *PerformanceOptimizationCoordinator) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	var lastErr error
	if err := c.resources.Stop(); err != nil {
		lastErr = err
	}
	if err := c.sched.Stop(); err != nil {
		lastErr = err
	}
	if err := c.prefetch.Stop(); err != nil {
		lastErr = err
	}

	if c.cfg.Cache.StoragePath != "" {
		if err := c.prefetch.SaveSnapshot(); err != nil {
			common.CoordinatorLogger.Warn("Failed to save cache snapshot: %v", err)
		}
		if err := c.tabMgr.SaveSnapshot(c.cfg.Cache.StoragePath); err != nil {
			common.CoordinatorLogger.Warn("Failed to save tab snapshot: %v", err)
		}
	}

	common.CoordinatorLogger.Info("Coordinator stopped")
	return lastErr
}

// reactToPressure suspends the heaviest eligible tabs when pressure
// escalates to High or Critical
func (c *PerformanceOptimizationCoordinator) reactToPressure(ctx context.Context, snapshot monitor.ResourceSnapshot) {
	if snapshot.PressureLevel < monitor.PressureHigh {
		return
	}

	candidates := c.tabMgr.EvaluateSuspensionCandidates(snapshot.PressureLevel)
	limit := c.suspensionLimit(snapshot.PressureLevel)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for _, tabID := range candidates {
		if err := ctx.Err(); err != nil {
			return
		}
		c.submitSuspension(tabID)
	}
}

// suspensionLimit scales how many tabs to suspend with how far pressure is
// over the threshold
func (c *PerformanceOptimizationCoordinator) suspensionLimit(level monitor.PressureLevel) int {
	limit := c.tabMgr.MaxSuspensions()
	if limit <= 0 {
		limit = 5
	}
	if level >= monitor.PressureCritical {
		limit *= 2
	}
	return limit
}

// submitSuspension schedules the blocking host suspend call for one tab
func (c *PerformanceOptimizationCoordinator) submitSuspension(tabID string) (string, error) {
	return c.sched.Submit(scheduler.TaskSpec{
		Kind:     "suspend-tab",
		Priority: scheduler.PriorityHigh,
		Run: func(ctx context.Context) error {
			// Eligibility re-check: the tab may have been pinned or
			// focused since candidates were evaluated
			record, ok := c.tabMgr.Get(tabID)
			if !ok || record.State != tabs.TabActive || record.IsPinned || record.IsActive {
				return nil
			}
			if err := c.host.SuspendTab(ctx, tabID); err != nil {
				return err
			}
			return c.tabMgr.MarkSuspended(tabID)
		},
	})
}

// RequestRestore reacts to a navigation/interaction event referencing a
// suspended tab by scheduling its restoration
func (c *PerformanceOptimizationCoordinator) RequestRestore(tabID string) (string, error) {
	if err := c.tabMgr.MarkRestoring(tabID); err != nil {
		return "", err
	}

	return c.sched.Submit(scheduler.TaskSpec{
		Kind:     "restore-tab",
		Priority: scheduler.PriorityHigh,
		Run: func(ctx context.Context) error {
			if err := c.host.RestoreTab(ctx, tabID); err != nil {
				return err
			}
			return c.tabMgr.MarkActive(tabID)
		},
		OnComplete: func(taskID string, err error) {
			if err != nil {
				// The tab stays suspended and is flagged for reload
				if markErr := c.tabMgr.MarkSuspended(tabID); markErr != nil {
					common.CoordinatorLogger.Error("Failed to settle tab '%s' after restore failure: %v", tabID, markErr)
				}
			}
		},
	})
}

// PredictiveCaching asks the navigation predictor for likely next URLs,
// admits the worthwhile ones, and schedules their prefetches
func (c *PerformanceOptimizationCoordinator) PredictiveCaching(ctx context.Context, userID, currentURL string, navigationContext map[string]string) (CachingResult, error) {
	session := c.touchSession(userID)
	session.LastURL = currentURL
	session.NavigationCount++

	predictions, err := c.pred.Predict(ctx, currentURL, navigationContext)
	if err != nil {
		return CachingResult{}, fmt.Errorf("navigation prediction failed: %w", err)
	}

	var admissions []string
	for _, prediction := range predictions {
		candidate := cache.Candidate{
			URL:           prediction.URL,
			Probability:   prediction.Probability,
			EstimatedSize: estimatePageSize(prediction.URL),
		}
		result := c.prefetch.Admit(candidate)
		if !result.Admitted {
			continue
		}
		admissions = append(admissions, prediction.URL)
		c.submitPrefetch(prediction.URL)
	}

	return CachingResult{
		CacheAdmissions:     admissions,
		CacheHitProbability: c.prefetch.HitProbability(),
		Strategy:            c.strategyLabel(),
	}, nil
}

// submitPrefetch schedules the network fetch for an admitted entry. A fetch
// that exhausts its retries evicts the pending entry.
func (c *PerformanceOptimizationCoordinator) submitPrefetch(url string) {
	_, err := c.sched.Submit(scheduler.TaskSpec{
		Kind:     "prefetch",
		Priority: scheduler.PriorityMedium,
		Run: func(ctx context.Context) error {
			if err := c.fetcher.Fetch(ctx, url); err != nil {
				return err
			}
			c.prefetch.MarkFetched(url)
			return nil
		},
		OnComplete: func(taskID string, err error) {
			if err != nil {
				c.prefetch.MarkFetchFailed(url)
			}
		},
	})
	if err != nil {
		common.CoordinatorLogger.Error("Failed to submit prefetch for %s: %v", url, err)
		c.prefetch.MarkFetchFailed(url)
	}
}

// MemoryManagement ingests caller-observed tab state, schedules suspensions
// under pressure, and reports restoration triggers
func (c *PerformanceOptimizationCoordinator) MemoryManagement(tabSnapshots []TabSnapshot, snapshot monitor.ResourceSnapshot) (MemoryResult, error) {
	var restorationTriggers []string

	for _, tab := range tabSnapshots {
		c.tabMgr.RegisterTab(tab.TabID, tab.IsPinned)
		if err := c.tabMgr.Tick(tab.TabID, tab.MemoryUsageBytes, tab.IsActive); err != nil {
			common.CoordinatorLogger.Warn("Tick failed for tab '%s': %v", tab.TabID, err)
		}

		// A suspended tab the user is interacting with needs restoring
		if record, ok := c.tabMgr.Get(tab.TabID); ok && tab.IsActive && record.State == tabs.TabSuspended {
			restorationTriggers = append(restorationTriggers, tab.TabID)
			if _, err := c.RequestRestore(tab.TabID); err != nil {
				common.CoordinatorLogger.Warn("Restore request failed for tab '%s': %v", tab.TabID, err)
			}
		}
	}

	candidates := c.tabMgr.EvaluateSuspensionCandidates(snapshot.PressureLevel)
	limit := c.suspensionLimit(snapshot.PressureLevel)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	var suspended []string
	for _, tabID := range candidates {
		if _, err := c.submitSuspension(tabID); err != nil {
			common.CoordinatorLogger.Warn("Suspension submit failed for tab '%s': %v", tabID, err)
			continue
		}
		suspended = append(suspended, tabID)
	}

	return MemoryResult{
		SuspendedTabIDs:     suspended,
		RestorationTriggers: restorationTriggers,
		FreedBytesEstimate:  c.tabMgr.FreedBytesEstimate(suspended),
	}, nil
}

// BackgroundProcessing submits ad-hoc work described by the caller
func (c *PerformanceOptimizationCoordinator) BackgroundProcessing(descriptor TaskDescriptor) (ProcessingResult, error) {
	priority, err := parsePriority(descriptor.Priority)
	if err != nil {
		return ProcessingResult{}, err
	}

	run, err := c.taskBodyFor(descriptor)
	if err != nil {
		return ProcessingResult{}, err
	}

	taskID, err := c.sched.Submit(scheduler.TaskSpec{
		Kind:     descriptor.Kind,
		Priority: priority,
		Run:      run,
	})
	if err != nil {
		return ProcessingResult{}, err
	}

	return ProcessingResult{
		TaskID:              taskID,
		Priority:            priority.String(),
		EstimatedCompletion: c.estimateCompletion(priority),
	}, nil
}

// PerformanceMonitoring reports the current snapshot, scheduler activity,
// and tuning recommendations
func (c *PerformanceOptimizationCoordinator) PerformanceMonitoring(userID string) (MonitoringResult, error) {
	c.touchSession(userID)

	snapshot, err := c.resources.Sample()
	if err != nil {
		// Degrade to the conservative default instead of failing the call
		snapshot.PressureLevel = monitor.PressureMedium
		common.CoordinatorLogger.Warn("Monitoring degraded: %v", err)
	}

	return MonitoringResult{
		ResourceSnapshot:  snapshot,
		Recommendations:   c.recommendations(snapshot),
		ActiveTaskSummary: c.sched.ActiveSummary(),
	}, nil
}

// ApplyTuning pushes reloaded tuning parameters into the running
// components. Structural settings (worker count, budget, addresses) require
// a restart and are left untouched.
func (c *PerformanceOptimizationCoordinator) ApplyTuning(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Cache != nil {
		c.prefetch.SetTuning(cfg.Cache.AdmissionThreshold, cfg.Cache.EntryTTL)
	}
	if cfg.Tabs != nil {
		c.tabMgr.SetTuning(cfg.Tabs.IdleThreshold, cfg.Tabs.MaxSuspensions)
	}
	if cfg.Monitor != nil {
		c.resources.SetThresholds(cfg.Monitor.MediumThreshold, cfg.Monitor.HighThreshold, cfg.Monitor.CriticalThreshold)
	}
	common.CoordinatorLogger.Info("Applied reloaded tuning parameters")
}

// Cache exposes the predictive cache for the gateway and CLI
func (c *PerformanceOptimizationCoordinator) Cache() *cache.PredictiveCache {
	return c.prefetch
}

// Tabs exposes the tab manager for the gateway and CLI
func (c *PerformanceOptimizationCoordinator) Tabs() *tabs.TabResourceManager {
	return c.tabMgr
}

// Scheduler exposes the task scheduler for the gateway and CLI
func (c *PerformanceOptimizationCoordinator) Scheduler() *scheduler.BackgroundTaskScheduler {
	return c.sched
}

// Monitor exposes the resource monitor for the gateway and CLI
func (c *PerformanceOptimizationCoordinator) Monitor() *monitor.ResourceMonitor {
	return c.resources
}

func (c *PerformanceOptimizationCoordinator) touchSession(userID string) *Session {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, ok := c.sessions[userID]
	if !ok {
		session = &Session{UserID: userID, CreatedAt: time.Now()}
		c.sessions[userID] = session
	}
	session.LastSeenAt = time.Now()
	return session
}

func (c *PerformanceOptimizationCoordinator) strategyLabel() string {
	switch c.resources.EffectivePressure() {
	case monitor.PressureLow:
		return "aggressive"
	case monitor.PressureMedium:
		return "balanced"
	default:
		return "conservative"
	}
}

func (c *PerformanceOptimizationCoordinator) estimateCompletion(priority scheduler.Priority) time.Time {
	ahead := c.sched.QueueDepth(priority)
	perTask := c.cfg.Scheduler.TaskMaxDuration / 2
	if perTask <= 0 {
		perTask = 15 * time.Second
	}
	waves := ahead/c.sched.Workers() + 1
	return time.Now().Add(time.Duration(waves) * perTask)
}

func (c *PerformanceOptimizationCoordinator) recommendations(snapshot monitor.ResourceSnapshot) []string {
	var recs []string

	switch snapshot.PressureLevel {
	case monitor.PressureCritical:
		recs = append(recs, "critical memory pressure: suspend idle tabs immediately")
	case monitor.PressureHigh:
		recs = append(recs, "high memory pressure: consider closing unused tabs")
	case monitor.PressureLow:
		recs = append(recs, "resources healthy: prefetching aggressively")
	}

	stats := c.prefetch.Stats()
	if total := stats.HitCount + stats.MissCount; total > 20 {
		hitRate := float64(stats.HitCount) / float64(total)
		if hitRate < 0.3 {
			recs = append(recs, "low cache hit rate: navigation predictions may need tuning")
		}
	}
	if stats.TotalSize > c.prefetch.BudgetBytes()*9/10 {
		recs = append(recs, "cache near budget: raising the budget may reduce evictions")
	}

	return recs
}

func parsePriority(value string) (scheduler.Priority, error) {
	switch value {
	case "high":
		return scheduler.PriorityHigh, nil
	case "medium", "":
		return scheduler.PriorityMedium, nil
	case "low":
		return scheduler.PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority '%s'", value)
	}
}

// taskBodyFor maps a descriptor kind onto a concrete task body
func (c *PerformanceOptimizationCoordinator) taskBodyFor(descriptor TaskDescriptor) (scheduler.TaskFunc, error) {
	switch descriptor.Kind {
	case "prefetch":
		url := descriptor.Payload["url"]
		if url == "" {
			return nil, fmt.Errorf("prefetch task requires a 'url' payload field")
		}
		return func(ctx context.Context) error {
			if err := c.fetcher.Fetch(ctx, url); err != nil {
				return err
			}
			c.prefetch.MarkFetched(url)
			return nil
		}, nil
	case "suspend-tab":
		tabID := descriptor.Payload["tab_id"]
		if tabID == "" {
			return nil, fmt.Errorf("suspend-tab task requires a 'tab_id' payload field")
		}
		return func(ctx context.Context) error {
			if err := c.host.SuspendTab(ctx, tabID); err != nil {
				return err
			}
			return c.tabMgr.MarkSuspended(tabID)
		}, nil
	case "restore-tab":
		tabID := descriptor.Payload["tab_id"]
		if tabID == "" {
			return nil, fmt.Errorf("restore-tab task requires a 'tab_id' payload field")
		}
		return func(ctx context.Context) error {
			if err := c.host.RestoreTab(ctx, tabID); err != nil {
				return err
			}
			return c.tabMgr.MarkActive(tabID)
		}, nil
	case "cache-sweep":
		return func(ctx context.Context) error {
			c.prefetch.EvictExpired()
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown task kind '%s'", descriptor.Kind)
	}
}

// estimatePageSize guesses a prefetch payload size when the predictor gives
// none. Media-heavy paths get a larger estimate.
func estimatePageSize(url string) int64 {
	const baseSize = 512 * 1024
	lower := strings.ToLower(url)
	for _, hint := range []string{"video", "image", "media", "gallery"} {
		if strings.Contains(lower, hint) {
			return 4 * baseSize
		}
	}
	return baseSize
}
