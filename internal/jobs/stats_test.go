package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
}

func (c *countingStore) Stats() map[string]int {
	c.calls.Add(1)
	return map[string]int{"users": 2, "groups": 1}
}

type fixedOnline int

func (f fixedOnline) Online() int { return int(f) }

func TestRecordStatsReadsStore(t *testing.T) {
	store := &countingStore{}
	s := NewScheduler(store, fixedOnline(1), logs.GetLoggerFromLevel(slog.LevelDebug))

	s.RecordStats()
	require.EqualValues(t, 1, store.calls.Load())
}

func TestScheduleStatsRejectsBadExpression(t *testing.T) {
	s := NewScheduler(&countingStore{}, nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.Error(t, s.ScheduleStats("not a schedule"))
}

func TestScheduledStatsRun(t *testing.T) {
	store := &countingStore{}
	s := NewScheduler(store, nil, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, s.ScheduleStats("@every 1s"))

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool {
		return store.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}
