package chart

import (
	"context"
	"sync"
	"time"

	"github.com/roylee0704/gron"
	"github.com/roylee0704/gron/xtime"
	"github.com/rs/zerolog"

	"rz-top100-srv/internal/models"
)

// computeTimeout bounds one scheduled aggregation run.
const computeTimeout = 5 * time.Minute

// Scheduler triggers the daily chart computation shortly after midnight for
// yesterday in the configured timezone. A failed run only logs; the next
// day's run is unaffected.
type Scheduler struct {
	agg    *Aggregator
	loc    *time.Location
	logger zerolog.Logger
	cron   *gron.Cron
	timer  *time.Timer
	opsMu  sync.Mutex
}

func NewScheduler(agg *Aggregator, loc *time.Location, logger zerolog.Logger) *Scheduler {
	return &Scheduler{agg: agg, loc: loc, logger: logger}
}

// Start arms the daily run. gron's At parses wall-clock times against the
// process-local zone, so the first firing is scheduled by hand at 00:05 in
// the configured timezone; the recurring cron then ticks every 24h from
// that anchor.
func (s *Scheduler) Start() {
	s.cron = gron.New()
	delay := time.Until(s.nextRun(time.Now()))
	s.timer = time.AfterFunc(delay, func() {
		s.opsMu.Lock()
		s.RunOnce()
		s.opsMu.Unlock()

		s.cron.AddFunc(gron.Every(1*xtime.Day), func() {
			s.opsMu.Lock()
			defer s.opsMu.Unlock()
			s.RunOnce()
		})
		s.cron.Start()
	})
	s.logger.Info().Time("first_run", s.nextRun(time.Now())).Msg("daily chart scheduler started")
}

// nextRun is the next 00:05 after now in the configured timezone.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), 0, 5, 0, 0, s.loc)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// RunOnce computes yesterday's chart in the configured timezone.
func (s *Scheduler) RunOnce() {
	day := time.Now().In(s.loc).AddDate(0, 0, -1).Format(models.DayKeyFormat)

	ctx, cancel := context.WithTimeout(context.Background(), computeTimeout)
	defer cancel()

	if _, err := s.agg.Compute(ctx, day); err != nil {
		// operator-facing fault; prior snapshot for this day stays intact
		s.logger.Error().Err(err).Str("day", day).Msg("scheduled chart computation failed")
	}
}

func (s *Scheduler) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cron != nil {
		s.cron.Stop()
	}
}
