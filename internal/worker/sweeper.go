package worker

import (
	"context"
	"time"

	"github.com/Fi44er/casino_ledger/utils"
	"github.com/robfig/cron/v3"
)

const (
	sweepLockKey = "cron:lock:expire_bonuses"
	sweepLockTTL = 5 * time.Minute
)

// Expirer closes bonuses past their expiry.
type Expirer interface {
	ExpireBonuses(ctx context.Context) (int, error)
}

// Sweeper runs the bonus expiry job on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	expirer Expirer
	lock    DistributedLock
	logger  *utils.Logger
}

func NewSweeper(expirer Expirer, lock DistributedLock, logger *utils.Logger) *Sweeper {
	if lock == nil {
		lock = LocalLock{}
	}
	return &Sweeper{
		cron:    cron.New(),
		expirer: expirer,
		lock:    lock,
		logger:  logger,
	}
}

// Start schedules the sweep, e.g. "@every 1m" or "*/5 * * * *".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Bonus sweeper started (%s)", schedule)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Bonus sweeper stopped")
}

// Sweep expires bonuses once, unless another instance holds the lock.
// It returns the number of bonuses expired.
func (s *Sweeper) Sweep(ctx context.Context) int {
	locked, err := s.lock.Acquire(ctx, sweepLockKey, sweepLockTTL)
	if err != nil {
		s.logger.Errorf("Bonus sweep: failed to acquire lock: %v", err)
		return 0
	}
	if !locked {
		s.logger.Debug("Bonus sweep: another instance holds the lock")
		return 0
	}
	defer func() {
		if err := s.lock.Release(ctx, sweepLockKey); err != nil {
			s.logger.Warnf("Bonus sweep: failed to release lock: %v", err)
		}
	}()

	n, err := s.expirer.ExpireBonuses(ctx)
	if err != nil {
		s.logger.Errorf("Bonus sweep failed: %v", err)
		return n
	}
	if n > 0 {
		s.logger.Infof("Bonus sweep expired %d bonuses", n)
	}
	return n
}
