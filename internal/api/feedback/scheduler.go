package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the improver periodically in the background.
type Scheduler struct {
	logger   *slog.Logger
	improver *Improver
	cron     *cron.Cron
	timeout  time.Duration
}

// NewScheduler registers UpdateBehavior under spec (standard cron syntax or
// descriptors such as "@every 6h"). Overlapping runs are skipped.
func NewScheduler(improver *Improver, spec string, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	s := &Scheduler{logger: logger, improver: improver, timeout: timeout}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid improvement schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	analysis, err := s.improver.UpdateBehavior(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled behavior update failed", slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "Scheduled behavior update finished",
		slog.Int64("version", analysis.Tuning.Version),
		slog.Int("adjustments", len(analysis.Adjustments)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Improvement scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop halts scheduling and waits for a running update to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Improvement scheduler stop timed out")
	}
}
