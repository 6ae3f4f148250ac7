package notifications

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

const (
	DefaultSweepSchedule = "@every 10m"
	DefaultAbandonAfter  = 72 * time.Hour
	AbandonReason        = "No delivery receipt received"
)

var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSweepSchedule checks a cron expression or descriptor such as "@every 10m".
func ValidateSweepSchedule(schedule string) error {
	_, err := sweepParser.Parse(schedule)
	return err
}

// Sweeper abandons notifications that were sent but never got a receipt.
type Sweeper struct {
	store        Store
	logger       *logger.Logger
	abandonAfter time.Duration
	now          func() time.Time
	cron         *cron.Cron
}

type SweeperOptions struct {
	AbandonAfter time.Duration
	Now          func() time.Time
}

func NewSweeper(l *logger.Logger, store Store, options SweeperOptions) *Sweeper {
	if options.AbandonAfter <= 0 {
		options.AbandonAfter = DefaultAbandonAfter
	}
	if options.Now == nil {
		options.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		store:        store,
		logger:       l,
		abandonAfter: options.AbandonAfter,
		now:          options.Now,
	}
}

// Start runs Sweep on the given schedule until Close.
func (s *Sweeper) Start(schedule string) error {
	sch, err := sweepParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	s.cron.Schedule(sch, cron.FuncJob(func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Errorf("sweep failed: %v", err)
		}
	}))
	s.cron.Start()
	s.logger.Infof("sweeper started, schedule %q, abandoning after %s", schedule, s.abandonAfter)
	return nil
}

// Sweep marks SENT notifications without a receipt for longer than abandonAfter as ABANDONED.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.List(ctx, ListFilter{
		Statuses:          []Status{StatusSent},
		LastAttemptBefore: now.Add(-s.abandonAfter),
	})
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, n := range stale {
		change, ok := n.Abandon(AbandonReason, now)
		if !ok {
			continue
		}
		applied, err := s.store.Transition(ctx, n, change)
		if err != nil {
			return abandoned, fmt.Errorf("failed to abandon notification %s: %w", n.ID, err)
		}
		if applied {
			abandoned++
		}
	}
	if abandoned > 0 {
		s.logger.Infof("abandoned %d notifications without receipt", abandoned)
	}
	return abandoned, nil
}

func (s *Sweeper) Close() error {
	if s.cron == nil {
		return nil
	}
	<-s.cron.Stop().Done()
	s.logger.Infof("sweeper stopped")
	return nil
}
