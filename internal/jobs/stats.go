package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"calendar-sync/internal/observability"
)

// StatsSource reports entity counts per collection.
type StatsSource interface {
	Stats() map[string]int
}

// OnlineCounter reports how many identities are bound to a live session.
type OnlineCounter interface {
	Online() int
}

// Scheduler runs periodic housekeeping on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	store  StatsSource
	online OnlineCounter
	log    *slog.Logger
}

func NewScheduler(store StatsSource, online OnlineCounter, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		online: online,
		log:    log,
	}
}

// ScheduleStats registers the store gauge refresh. expr accepts standard
// five-field expressions and descriptors such as "@every 30s".
func (s *Scheduler) ScheduleStats(expr string) error {
	if _, err := s.cron.AddFunc(expr, s.RecordStats); err != nil {
		return fmt.Errorf("schedule stats %q: %w", expr, err)
	}
	return nil
}

// RecordStats publishes the current counts to the store gauges.
func (s *Scheduler) RecordStats() {
	counts := s.store.Stats()
	observability.SetStoreEntities(counts)

	online := 0
	if s.online != nil {
		online = s.online.Online()
	}
	s.log.Debug("store stats",
		slog.Int("users", counts["users"]),
		slog.Int("groups", counts["groups"]),
		slog.Int("schedules", counts["schedules"]),
		slog.Int("chats", counts["chats"]),
		slog.Int("online", online),
	)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
