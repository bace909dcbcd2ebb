// Package scheduler converts the ledger's view of outstanding
// assignments into a deduplicated dispatch stream for the worker pool.
// Grounded on archiver.rs's Archiver struct.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/archivetheweb/atwworker/internal/pkg/ledger"
	"github.com/archivetheweb/atwworker/internal/pkg/log"
	"github.com/archivetheweb/atwworker/internal/pkg/models"
	"github.com/archivetheweb/atwworker/internal/pkg/stats"
)

const (
	dispatchCapacity = 100
	pollInterval     = 10 * time.Millisecond
)

// WorkerFunc runs a single assignment end-to-end; it is the shape of
// (*worker.Worker).Run, factored out so the scheduler doesn't import the
// worker package's concrete dependencies.
type WorkerFunc func(ctx context.Context, identity string, a models.ArchiveAssignment) error

// Options configures a Scheduler.
type Options struct {
	Identity      string
	FetchInterval time.Duration
	PoolSize      int
}

// Scheduler runs the dispatch loop described in §4.1. One Scheduler
// processes assignments for a single identity.
type Scheduler struct {
	ledger ledger.Ledger
	run    WorkerFunc
	opts   Options
	logger *log.FieldedLogger

	dispatch    chan models.ArchiveAssignment
	completions chan string

	processingMu sync.Mutex
	processing   map[string]struct{}
}

// New returns a Scheduler dispatching due assignments to run.
func New(l ledger.Ledger, run WorkerFunc, opts Options) *Scheduler {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if opts.FetchInterval <= 0 {
		opts.FetchInterval = 30 * time.Second
	}
	return &Scheduler{
		ledger:      l,
		run:         run,
		opts:        opts,
		logger:      log.NewFieldedLogger(&log.Fields{"component": "scheduler.Scheduler"}),
		dispatch:    make(chan models.ArchiveAssignment, dispatchCapacity),
		completions: make(chan string, opts.PoolSize),
		processing:  make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled. It ticks every FetchInterval,
// querying the ledger, filtering by cron due-ness, and dispatching
// newly-due assignments to a bounded pool of concurrent worker runs.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.opts.PoolSize; i++ {
		wg.Add(1)
		go s.runWorker(ctx, &wg)
	}

	completionsDone := make(chan struct{})
	go func() {
		defer close(completionsDone)
		s.drainCompletions(ctx)
	}()

	for {
		s.tick(ctx)

		if !s.sleepInterruptible(ctx, s.opts.FetchInterval) {
			break
		}
	}

	close(s.dispatch)
	wg.Wait()
	<-completionsDone
}

// tick performs one pass of the loop described in §4.1 steps 1-4.
func (s *Scheduler) tick(ctx context.Context) {
	assignments, err := s.ledger.ArchivingRequestsFor(ctx, s.opts.Identity)
	if err != nil {
		s.logger.Error("failed to fetch archiving requests", "err", err.Error())
		return
	}

	now := time.Now()

	for _, a := range assignments {
		if ctx.Err() != nil {
			return
		}

		if a.EndTimestamp > 0 && a.EndTimestamp < now.Unix() {
			if err := s.ledger.DeleteArchiveRequest(ctx, a.ID); err != nil {
				s.logger.Error("failed to delete expired assignment", "id", a.ID, "err", err.Error())
			}
			continue
		}

		due, err := isDue(a, now)
		if err != nil {
			s.logger.Warn("dropping assignment with unparsable cron expression", "id", a.ID, "cron", a.Cron, "err", err.Error())
			continue
		}
		if !due {
			continue
		}

		if !s.markProcessing(a.ID) {
			continue
		}

		select {
		case s.dispatch <- a:
		case <-ctx.Done():
			s.unmarkProcessing(a.ID)
			return
		}
	}
}

// cronParser accepts the 6-field seconds-leading expressions assignments
// use (e.g. "0 * * * * *"), matching the seconds-aware schedules the
// ledger hands out.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// isDue computes the first scheduled instant strictly after
// LastArchivedTime and reports whether it has already passed.
func isDue(a models.ArchiveAssignment, now time.Time) (bool, error) {
	schedule, err := cronParser.Parse(a.Cron)
	if err != nil {
		return false, err
	}
	last := time.Unix(a.LastArchivedTime, 0)
	next := schedule.Next(last)
	return !next.After(now), nil
}

func (s *Scheduler) markProcessing(id string) bool {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	if _, exists := s.processing[id]; exists {
		return false
	}
	s.processing[id] = struct{}{}
	return true
}

func (s *Scheduler) unmarkProcessing(id string) {
	s.processingMu.Lock()
	delete(s.processing, id)
	s.processingMu.Unlock()
}

// runWorker streams the dispatch channel, running assignments one at a
// time per goroutine, and reports each completion back for processing-set
// removal.
func (s *Scheduler) runWorker(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	stats.ActiveWorkersIncr()
	defer stats.ActiveWorkersDecr()

	for a := range s.dispatch {
		err := s.run(ctx, s.opts.Identity, a)
		switch {
		case err == nil:
			stats.AssignmentsProcessedIncr()
		case errors.Is(err, models.ErrEarlyTermination):
			s.logger.Debug("assignment cancelled, will retry next tick", "id", a.ID)
		default:
			s.logger.Error("assignment run failed", "id", a.ID, "err", err.Error())
			stats.AssignmentsProcessedIncr()
		}

		select {
		case s.completions <- a.ID:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) drainCompletions(ctx context.Context) {
	for {
		select {
		case id := <-s.completions:
			s.unmarkProcessing(id)
		case <-ctx.Done():
			return
		}
	}
}

// sleepInterruptible sleeps for d in pollInterval increments, returning
// false as soon as ctx is cancelled so the loop can unwind immediately
// (per §5's "interruptible in granularity ≤ 10 ms" requirement).
func (s *Scheduler) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}
