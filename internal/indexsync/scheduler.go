package indexsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 1m"

// Lease coordinates passes across processes. It only reduces duplicate
// work; overlapping passes remain safe without it.
type Lease interface {
	Acquire(ctx context.Context, token string) (bool, error)
	Release(ctx context.Context, token string) error
}

// Scheduler runs the worker on a cron schedule. A tick that fires while the
// previous pass is still running is skipped.
type Scheduler struct {
	worker  *Worker
	lease   Lease
	cron    *cron.Cron
	timeout time.Duration
	ctx     context.Context
}

// NewScheduler registers the worker on schedule. lease may be nil.
func NewScheduler(worker *Worker, schedule string, lease Lease, timeout time.Duration) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	logger := cronLogger{}
	s := &Scheduler{
		worker:  worker,
		lease:   lease,
		timeout: timeout,
		ctx:     context.Background(),
		cron:    cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("schedule index sync %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins firing ticks. Passes are cancelled when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop prevents new ticks and waits for a running pass, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	_, _ = s.RunOnce(ctx)
}

// RunOnce executes a single pass under the lease, if one is configured. It
// returns an empty report when another process holds the lease.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)

	if s.lease != nil {
		acquired, err := s.lease.Acquire(ctx, runID)
		switch {
		case err != nil:
			log.Warn("index sync lease unavailable, running without it", "err", err)
		case !acquired:
			log.Debug("index sync lease held elsewhere, skipping")
			s.worker.metrics.RecordSkipped()
			return Report{}, nil
		default:
			defer func() {
				if err := s.lease.Release(context.WithoutCancel(ctx), runID); err != nil {
					log.Warn("release index sync lease", "err", err)
				}
			}()
		}
	}

	report, err := s.worker.Run(ctx)
	if err != nil {
		log.Error("index sync pass failed", "err", err)
		return report, err
	}
	if report.Batch > 0 {
		log.Info("index sync pass",
			"batch", report.Batch,
			"upserted", report.Upserted,
			"deleted", report.Deleted,
			"conflicts", report.Conflicts,
			"failed", report.Failed,
		)
	}
	return report, nil
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
