// Package scheduler runs checks on their configured intervals and caches
// the latest outcome of each.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dynwatch/dynwatch/internal/check"
	"github.com/dynwatch/dynwatch/internal/checkdef"
)

// Entry pairs a check definition with the runner that executes it
type Entry struct {
	Def    *checkdef.Check
	Runner *check.Runner
}

// Scheduler manages periodic check runs
type Scheduler struct {
	cache   *StateCache
	logger  zerolog.Logger
	entries []Entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool // run loops are active
	started bool // Start was called and Stop was not
}

// NewScheduler creates a new scheduler
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cache:  NewStateCache(),
		logger: logger,
	}
}

// SetEntries replaces the set of scheduled checks
func (s *Scheduler) SetEntries(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// Start begins the run scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	if len(s.entries) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no checks loaded, call SetEntries() first")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.started = true
	entries := s.entries
	s.mu.Unlock()

	// Start one goroutine per check
	for _, e := range entries {
		s.wg.Add(1)
		go s.runLoop(ctx, e)
	}

	s.logger.Info().Int("checks", len(entries)).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for in-flight runs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	if !s.running {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// runLoop runs periodic executions of a single check
func (s *Scheduler) runLoop(ctx context.Context, e Entry) {
	defer s.wg.Done()

	interval, err := e.Def.Spec.EffectiveInterval()
	if err != nil {
		s.logger.Error().Err(err).Str("check", e.Def.Metadata.ID).Msg("invalid run interval")
		return
	}

	// Initial run
	s.runOnce(ctx, e, interval)

	// Periodic runs
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, e, interval)
		}
	}
}

// runOnce performs a single run of a check and caches its outcome
func (s *Scheduler) runOnce(ctx context.Context, e Entry, interval time.Duration) {
	now := time.Now()

	result, err := e.Runner.Run(ctx, e.Def)

	state := &CheckState{
		UpdatedAt: now,
		TTL:       interval,
	}
	if err != nil {
		// A run cut short by shutdown is not a verdict
		if ctx.Err() != nil {
			return
		}
		state.Status = check.StatusForError(err)
		state.Message = err.Error()
	} else {
		state.Result = result
		state.Status = result.Verdict.Status
		state.Message = result.Verdict.Message
	}

	s.cache.Set(e.Def.Metadata.ID, state)
}

// GetCache returns the state cache
func (s *Scheduler) GetCache() *StateCache {
	return s.cache
}

// Entries returns the scheduled checks
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy
	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}

// RunNow forces an immediate run of a specific check
func (s *Scheduler) RunNow(ctx context.Context, checkID string) error {
	s.mu.RLock()
	var target Entry
	var found bool
	for _, e := range s.entries {
		if e.Def.Metadata.ID == checkID {
			target = e
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return fmt.Errorf("check not found: %s", checkID)
	}

	interval, err := target.Def.Spec.EffectiveInterval()
	if err != nil {
		return fmt.Errorf("invalid run interval: %w", err)
	}

	s.runOnce(ctx, target, interval)
	return nil
}

// Reload replaces the scheduled checks and restarts the run loops. Cached
// states of checks that no longer exist are dropped. An empty set suspends
// the loops without giving up the intent to run, so a later reload with
// definitions brings them back.
func (s *Scheduler) Reload(entries []Entry) {
	s.mu.Lock()
	restart := s.started
	if s.running {
		s.cancel()
		s.running = false
		s.mu.Unlock()
		s.wg.Wait()
	} else {
		s.mu.Unlock()
	}

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.Def.Metadata.ID] = true
	}
	for id := range s.cache.GetAll() {
		if !keep[id] {
			s.cache.Delete(id)
		}
	}

	s.SetEntries(entries)

	if restart {
		if len(entries) == 0 {
			s.logger.Warn().Msg("no check definitions remain, run loops suspended")
		} else if err := s.Start(); err != nil {
			s.logger.Error().Err(err).Msg("restart after reload failed")
			return
		}
	}

	s.logger.Info().Int("checks", len(entries)).Msg("definitions reloaded")
}
