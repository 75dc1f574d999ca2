package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
)

type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*entities.JobRun
}

func (r *fakeRunRepo) Create(ctx context.Context, run *entities.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *run
	r.runs = append(r.runs, &copied)
	return nil
}

func (r *fakeRunRepo) Update(ctx context.Context, run *entities.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.ID == run.ID {
			copied := *run
			r.runs[i] = &copied
			return nil
		}
	}
	return errors.New("run not found")
}

func (r *fakeRunRepo) GetLastRun(ctx context.Context, jobName string) (*entities.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *entities.JobRun
	for _, run := range r.runs {
		if run.JobName != jobName {
			continue
		}
		if last == nil || run.StartedAt.After(last.StartedAt) {
			last = run
		}
	}
	return last, nil
}

func (r *fakeRunRepo) ListRecent(ctx context.Context, jobName string, limit int) ([]*entities.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.JobRun
	for i := len(r.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.runs[i].JobName == jobName {
			out = append(out, r.runs[i])
		}
	}
	return out, nil
}

func (r *fakeRunRepo) MarkStaleFailed(ctx context.Context, startedBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, run := range r.runs {
		if run.Status == entities.JobRunStatusRunning && run.StartedAt.Before(startedBefore) {
			run.Status = entities.JobRunStatusFailed
			count++
		}
	}
	return count, nil
}

// tick dispatches due jobs and waits for them to finish
func tick(s *Scheduler, ctx context.Context) {
	s.runDue(ctx)
	s.wg.Wait()
}

func newTestScheduler(t *testing.T, at time.Time) (*Scheduler, *fakeRunRepo, *clock.FakeClock) {
	t.Helper()
	runs := &fakeRunRepo{}
	fc := clock.NewFakeClock(at)
	s := NewScheduler(runs, fc, nil, config.SchedulerConfig{TickInterval: 30 * time.Second})
	return s, runs, fc
}

func countingJob(name, at string, calls *int) Job {
	return Job{
		Name: name,
		At:   at,
		Run: func(ctx context.Context, force bool) (Counters, error) {
			*calls++
			return Counters{Processed: 5, Success: 4, Failed: 1}, nil
		},
	}
}

func TestScheduler_NotDueBeforeFireTime(t *testing.T) {
	s, runs, _ := newTestScheduler(t, time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC))
	calls := 0
	require.NoError(t, s.Register(countingJob("product_scan", "04:30", &calls)))

	tick(s, context.Background())
	assert.Zero(t, calls)
	assert.Empty(t, runs.runs)
}

func TestScheduler_RunsOncePerDay(t *testing.T) {
	s, runs, fc := newTestScheduler(t, time.Date(2026, 3, 2, 4, 31, 0, 0, time.UTC))
	calls := 0
	require.NoError(t, s.Register(countingJob("product_scan", "04:30", &calls)))

	tick(s, context.Background())
	assert.Equal(t, 1, calls)

	// Next tick the same day does nothing
	fc.Advance(30 * time.Second)
	tick(s, context.Background())
	assert.Equal(t, 1, calls)

	require.Len(t, runs.runs, 1)
	run := runs.runs[0]
	assert.Equal(t, entities.JobRunStatusCompleted, run.Status)
	assert.Equal(t, 5, run.RecordsProcessed)
	assert.Equal(t, 4, run.RecordsSuccess)
	assert.Equal(t, 1, run.RecordsFailed)
	require.NotNil(t, run.DurationSeconds)

	// The day after, it fires again
	fc.Advance(24 * time.Hour)
	tick(s, context.Background())
	assert.Equal(t, 2, calls)
}

func TestScheduler_SurvivesRestartWithoutDoubleRun(t *testing.T) {
	s, runs, fc := newTestScheduler(t, time.Date(2026, 3, 2, 4, 31, 0, 0, time.UTC))
	calls := 0
	require.NoError(t, s.Register(countingJob("product_scan", "04:30", &calls)))
	tick(s, context.Background())
	require.Equal(t, 1, calls)

	// A fresh scheduler over the same ledger sees today's run
	restarted := NewScheduler(runs, fc, nil, config.SchedulerConfig{TickInterval: 30 * time.Second})
	require.NoError(t, restarted.Register(countingJob("product_scan", "04:30", &calls)))
	tick(restarted, context.Background())
	assert.Equal(t, 1, calls)
}

func TestScheduler_FailedJobRecordsError(t *testing.T) {
	s, runs, _ := newTestScheduler(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC))
	require.NoError(t, s.Register(Job{
		Name: "product_scan",
		At:   "04:30",
		Run: func(ctx context.Context, force bool) (Counters, error) {
			return Counters{Processed: 2, Failed: 2}, errors.New("upstream down")
		},
	}))

	tick(s, context.Background())

	require.Len(t, runs.runs, 1)
	run := runs.runs[0]
	assert.Equal(t, entities.JobRunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "upstream down", *run.ErrorMessage)
	assert.Equal(t, 2, run.RecordsFailed)
}

func TestScheduler_PanickingJobRecordedAsFailed(t *testing.T) {
	s, runs, _ := newTestScheduler(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC))
	require.NoError(t, s.Register(Job{
		Name: "product_scan",
		At:   "04:30",
		Run: func(ctx context.Context, force bool) (Counters, error) {
			panic("boom")
		},
	}))

	tick(s, context.Background())

	require.Len(t, runs.runs, 1)
	assert.Equal(t, entities.JobRunStatusFailed, runs.runs[0].Status)
	require.NotNil(t, runs.runs[0].ErrorMessage)
	assert.Contains(t, *runs.runs[0].ErrorMessage, "boom")
}

func TestScheduler_DueJobsRunConcurrently(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC))

	// The first job blocks until the second one runs; sequential dispatch
	// would deadlock here
	release := make(chan struct{})
	var finished [2]bool
	require.NoError(t, s.Register(Job{
		Name: "product_scan",
		At:   "04:30",
		Run: func(ctx context.Context, force bool) (Counters, error) {
			select {
			case <-release:
			case <-time.After(5 * time.Second):
				t.Error("scan job was never unblocked; jobs did not overlap")
			}
			finished[0] = true
			return Counters{}, nil
		},
	}))
	require.NoError(t, s.Register(Job{
		Name: "daily_email",
		At:   "04:30",
		Run: func(ctx context.Context, force bool) (Counters, error) {
			close(release)
			finished[1] = true
			return Counters{}, nil
		},
	}))

	tick(s, context.Background())
	assert.True(t, finished[0])
	assert.True(t, finished[1])
}

func TestScheduler_TriggerBypassesDailyGate(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Date(2026, 3, 2, 4, 31, 0, 0, time.UTC))
	calls := 0
	forced := false
	require.NoError(t, s.Register(Job{
		Name: "product_scan",
		At:   "04:30",
		Run: func(ctx context.Context, force bool) (Counters, error) {
			calls++
			forced = force
			return Counters{}, nil
		},
	}))

	tick(s, context.Background())
	require.Equal(t, 1, calls)

	// Manual trigger runs again the same day, with force set
	require.NoError(t, s.Trigger(context.Background(), "product_scan"))
	assert.Equal(t, 2, calls)
	assert.True(t, forced)
}

func TestScheduler_TriggerUnknownJob(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC))
	assert.Error(t, s.Trigger(context.Background(), "nope"))
}

func TestScheduler_RegisterRejectsDuplicatesAndBadTimes(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC))
	calls := 0
	require.NoError(t, s.Register(countingJob("product_scan", "04:30", &calls)))
	assert.Error(t, s.Register(countingJob("product_scan", "05:30", &calls)))
	assert.Error(t, s.Register(countingJob("bad_time", "4:30pm", &calls)))
}

func TestScheduler_StatusReportsLastRun(t *testing.T) {
	s, _, _ := newTestScheduler(t, time.Date(2026, 3, 2, 4, 31, 0, 0, time.UTC))
	calls := 0
	require.NoError(t, s.Register(countingJob("product_scan", "04:30", &calls)))
	tick(s, context.Background())

	statuses, err := s.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "product_scan", statuses[0].Name)
	assert.False(t, statuses[0].Running)
	require.NotNil(t, statuses[0].LastRun)
	assert.Equal(t, entities.JobRunStatusCompleted, statuses[0].LastRun.Status)
}
