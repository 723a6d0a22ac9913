// Package scheduler fires config-declared workflow schedules. Each schedule
// pairs a workflow name with a standard 5-field cron spec (descriptors like
// @hourly included) and optional init vars; due schedules are submitted to
// the run pool so scheduled work shares the same concurrency bound as
// serve-mode runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/wendlabs/wend/internal/config"
	"github.com/wendlabs/wend/internal/engine"
	"github.com/wendlabs/wend/pkg/schema"
)

// tickInterval bounds how late a fire can be. Cron expressions have minute
// resolution, so a half-minute tick keeps worst-case lag inside one boundary.
const tickInterval = 30 * time.Second

// Runner executes a workflow to a terminal outcome. Satisfied by
// engine.Engine.
type Runner interface {
	Run(ctx context.Context, workflow string, vars map[string]any) (*schema.RunResult, error)
}

// entry is one parsed schedule with its next fire time.
type entry struct {
	workflow string
	spec     string
	sched    cron.Schedule
	vars     map[string]any
	next     time.Time
}

// Scheduler drives the schedule entries from a ticker loop.
type Scheduler struct {
	entries []*entry
	pool    *engine.Pool
	runner  Runner
	clock   clockwork.Clock
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[int]struct{} // entry indexes currently executing
}

// New parses the configured schedules. The cron specs were validated at
// config load with the same parser, so a parse failure here means the
// scheduler was handed raw, unvalidated config.
func New(schedules []config.Schedule, pool *engine.Pool, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries := make([]*entry, 0, len(schedules))
	for i, sc := range schedules {
		sched, err := cron.ParseStandard(sc.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule %d (%s): parse cron %q: %w", i, sc.Workflow, sc.Cron, err)
		}
		entries = append(entries, &entry{
			workflow: sc.Workflow,
			spec:     sc.Cron,
			sched:    sched,
			vars:     sc.Vars,
		})
	}

	return &Scheduler{
		entries:  entries,
		pool:     pool,
		runner:   runner,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		inflight: make(map[int]struct{}),
	}, nil
}

// Start launches the background ticker loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		s.loop(loopCtx)
	}()

	s.logger.Info("scheduler started", "schedules", len(s.entries))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	// Prime every entry from now. A schedule fires at its next cron
	// boundary after startup, never retroactively.
	s.prime(s.clock.Now().UTC())

	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// prime computes each entry's first fire time after now.
func (s *Scheduler) prime(now time.Time) {
	for _, e := range s.entries {
		e.next = e.sched.Next(now)
	}
}

// tick fires every entry whose next time has arrived and advances it to the
// following cron boundary.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now().UTC()
	for i, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		e.next = e.sched.Next(now)

		if !s.tryAcquire(i) {
			s.logger.Warn("schedule fire skipped, previous run still executing",
				"workflow", e.workflow, "cron", e.spec)
			continue
		}
		if err := s.submit(ctx, i, e); err != nil {
			s.release(i)
			s.logger.Error("schedule fire rejected",
				"workflow", e.workflow, "cron", e.spec, "error", err)
		}
	}
}

// submit hands the fire to the pool. The in-flight mark is held until the
// pooled run finishes, so a slow run suppresses later fires of the same
// schedule instead of stacking up.
func (s *Scheduler) submit(ctx context.Context, idx int, e *entry) error {
	vars := maps.Clone(e.vars)
	return s.pool.Submit(ctx, func(ctx context.Context) error {
		defer s.release(idx)

		s.logger.Info("scheduled run starting", "workflow", e.workflow, "cron", e.spec)
		res, err := s.runner.Run(ctx, e.workflow, vars)
		if err != nil {
			s.logger.Error("scheduled run failed to start",
				"workflow", e.workflow, "error", err)
			return err
		}

		s.logger.Info("scheduled run finished",
			"workflow", e.workflow, "run_id", res.RunID, "outcome", res.Outcome)
		if res.Err != nil {
			return res.Err
		}
		return nil
	})
}

// tryAcquire marks the entry in-flight unless it already is.
func (s *Scheduler) tryAcquire(idx int) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, running := s.inflight[idx]; running {
		return false
	}
	s.inflight[idx] = struct{}{}
	return true
}

func (s *Scheduler) release(idx int) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, idx)
}

// Stop halts the ticker loop and waits for it to exit. In-flight runs keep
// executing on the pool; draining them is the pool owner's job.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
	return nil
}
