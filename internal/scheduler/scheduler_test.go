package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/internal/store"
)

type fakeRunner struct {
	mu       sync.Mutex
	launched []string
	inputs   []map[string]any
}

func (f *fakeRunner) StartGraph(ctx context.Context, graphID string, input map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, graphID)
	f.inputs = append(f.inputs, input)
	return "run-1", nil
}

func testScheduler(s store.Store, runner GraphRunner) *Scheduler {
	return NewScheduler(s, runner, slog.New(slog.DiscardHandler))
}

func TestTickLaunchesDueJobs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	runner := &fakeRunner{}
	sched := testScheduler(s, runner)

	require.NoError(t, s.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID:             "j1",
		GraphID:        "g1",
		CronExpression: "* * * * *",
		Input:          json.RawMessage(`{"env":"prod"}`),
		Enabled:        true,
	}))

	sched.Tick(ctx)

	require.Len(t, runner.launched, 1)
	assert.Equal(t, "g1", runner.launched[0])
	assert.Equal(t, "prod", runner.inputs[0]["env"])

	job, err := s.GetScheduledJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "started", job.LastRunStatus)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().UTC().Add(-time.Second)))
}

func TestTickSkipsDisabledAndFutureJobs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	runner := &fakeRunner{}
	sched := testScheduler(s, runner)

	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID: "disabled", GraphID: "g1", CronExpression: "* * * * *", Enabled: false,
	}))
	require.NoError(t, s.CreateScheduledJob(ctx, &store.ScheduledJob{
		ID: "future", GraphID: "g2", CronExpression: "* * * * *", Enabled: true, NextRunAt: &future,
	}))

	sched.Tick(ctx)
	assert.Empty(t, runner.launched)
}

func TestCalculateNextRun(t *testing.T) {
	sched := testScheduler(store.NewMemoryStore(), &fakeRunner{})

	after := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
	next, err := sched.CalculateNextRun("0 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), next)

	_, err = sched.CalculateNextRun("not a cron", after)
	require.Error(t, err)
}

func TestStartIsIdempotentGuarded(t *testing.T) {
	sched := testScheduler(store.NewMemoryStore(), &fakeRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sched.Start(ctx))
	require.Error(t, sched.Start(ctx))
	sched.Stop()
}
