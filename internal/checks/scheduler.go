package checks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CheckExecutor is called by the scheduler for each due check.
type CheckExecutor func(ctx context.Context, check Check)

// Scheduler runs health checks on a periodic tick using a worker pool. Each
// check is dispatched only when its own interval has elapsed since its last
// run, so a short global tick can serve checks of mixed cadence.
type Scheduler struct {
	store    *CheckStore
	executor CheckExecutor
	tick     time.Duration
	workers  int
	logger   *zap.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that dispatches due checks to the executor.
func NewScheduler(store *CheckStore, executor CheckExecutor, tick time.Duration, workers int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		executor: executor,
		tick:     tick,
		workers:  workers,
		logger:   logger,
		lastRun:  make(map[string]time.Time),
	}
}

// Start begins the scheduling loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		// Run immediately on start, then on each tick.
		s.runDue()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runDue()
			}
		}
	}()
}

// Stop signals the scheduler to stop and waits for in-flight checks.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

// RunNow dispatches a single check immediately, outside the normal cadence.
func (s *Scheduler) RunNow(ctx context.Context, check Check) {
	s.markRun(check.ID)
	s.executor(ctx, check)
}

// runDue loads enabled checks and dispatches the due ones to the worker pool.
func (s *Scheduler) runDue() {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.tick)
	defer cancel()

	checks, err := s.store.ListEnabledChecks(ctx)
	if err != nil {
		s.logger.Warn("scheduler: failed to load checks", zap.Error(err))
		return
	}

	due := s.filterDue(checks)
	if len(due) == 0 {
		return
	}

	// Semaphore-based worker pool.
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

dispatch:
	for i := range due {
		select {
		case <-s.ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			defer func() { <-sem }()
			s.executor(ctx, c)
		}(due[i])
	}

	wg.Wait()
}

// filterDue keeps checks whose interval has elapsed and marks them as run.
func (s *Scheduler) filterDue(checks []Check) []Check {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []Check
	for _, c := range checks {
		interval := time.Duration(c.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = s.tick
		}
		if last, ok := s.lastRun[c.ID]; ok && now.Sub(last) < interval {
			continue
		}
		s.lastRun[c.ID] = now
		due = append(due, c)
	}
	return due
}

func (s *Scheduler) markRun(id string) {
	s.mu.Lock()
	s.lastRun[id] = time.Now()
	s.mu.Unlock()
}
