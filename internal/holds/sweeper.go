package holds

import (
	"context"
	"time"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// TimeoutProcessor lets the sweeper drive due lifecycle timeouts on the same
// cadence as the hold sweep. internal/timeouts.Worker implements it.
type TimeoutProcessor interface {
	ProcessDue(ctx context.Context) (int, error)
}

// Sweeper periodically expires overdue holds and fires due timeouts. It is
// the durable fallback for any scheduled delivery lost to a process restart.
type Sweeper struct {
	manager  *Manager
	timeouts TimeoutProcessor
	logger   *logging.Logger
	interval time.Duration
}

// NewSweeper creates a sweeper. timeouts may be nil when a separate process
// runs the timeout worker.
func NewSweeper(manager *Manager, timeouts TimeoutProcessor, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		manager:  manager,
		timeouts: timeouts,
		logger:   logger,
		interval: time.Minute,
	}
}

func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.manager == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if _, err := s.manager.SweepExpired(ctx); err != nil {
		s.logger.Error("hold sweep failed", "error", err)
	}
	if s.timeouts == nil {
		return
	}
	if _, err := s.timeouts.ProcessDue(ctx); err != nil {
		s.logger.Error("timeout processing failed", "error", err)
	}
}
