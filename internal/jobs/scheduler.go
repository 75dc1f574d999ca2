package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/entities"
	"github.com/asabanovic/ai-market-v2-sub000/internal/domain/repositories"
	"github.com/asabanovic/ai-market-v2-sub000/internal/infrastructure/observability"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/clock"
	"github.com/asabanovic/ai-market-v2-sub000/pkg/config"
	apperrors "github.com/asabanovic/ai-market-v2-sub000/pkg/errors"
)

// JobFunc is one runnable job body. The force flag bypasses any calendar
// predicate inside the body, so a manual trigger always does real work.
type JobFunc func(ctx context.Context, force bool) (Counters, error)

// Job is a scheduled job definition. At is the daily fire time in HH:MM,
// interpreted in UTC.
type Job struct {
	Name string
	At   string
	Run  JobFunc
}

// JobStatus is one job's current scheduling state
type JobStatus struct {
	Name    string           `json:"name"`
	At      string           `json:"at"`
	Running bool             `json:"running"`
	LastRun *entities.JobRun `json:"last_run,omitempty"`
}

// Scheduler fires registered jobs once per day at their configured time.
// The persistent run ledger is the scheduling state: a job is due when
// its fire time has passed and its last run started before today, so a
// process restart never double-runs a job.
type Scheduler struct {
	runs    repositories.JobRunRepository
	clk     clock.Clock
	metrics *observability.Metrics
	tick    time.Duration

	wg sync.WaitGroup

	mu      sync.Mutex
	jobs    []*Job
	byName  map[string]*Job
	running map[string]bool
}

// NewScheduler creates a new scheduler
func NewScheduler(
	runs repositories.JobRunRepository,
	clk clock.Clock,
	metrics *observability.Metrics,
	cfg config.SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		runs:    runs,
		clk:     clk,
		metrics: metrics,
		tick:    cfg.TickInterval,
		byName:  make(map[string]*Job),
		running: make(map[string]bool),
	}
}

// Register adds a job to the schedule. Registration order is the order
// due jobs are dispatched within one tick.
func (s *Scheduler) Register(job Job) error {
	if _, err := parseFireTime(job.At); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[job.Name]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("job %q already registered", job.Name))
	}
	registered := job
	s.jobs = append(s.jobs, &registered)
	s.byName[job.Name] = &registered
	return nil
}

// Start runs the tick loop until the context is cancelled. Each due job
// runs in its own goroutine, so a slow scan never delays the email
// dispatch; the running-set and the ledger keep one job from overlapping
// itself. In-flight jobs are waited out before Start returns.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Dur("tick", s.tick).Int("jobs", len(s.jobs)).Msg("scheduler started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		s.runDue(ctx)

		select {
		case <-ctx.Done():
			s.wg.Wait()
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Trigger runs a job immediately with the force flag set, bypassing the
// fire time and the once-per-day gate
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("unknown job %q", name))
	}
	return s.runJob(ctx, job, true)
}

// Status reports every registered job with its last ledger run
func (s *Scheduler) Status(ctx context.Context) ([]JobStatus, error) {
	s.mu.Lock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		last, err := s.runs.GetLastRun(ctx, job.Name)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		running := s.running[job.Name]
		s.mu.Unlock()
		statuses = append(statuses, JobStatus{Name: job.Name, At: job.At, Running: running, LastRun: last})
	}
	return statuses, nil
}

// History retrieves recent ledger runs of a job, newest first
func (s *Scheduler) History(ctx context.Context, name string, limit int) ([]*entities.JobRun, error) {
	s.mu.Lock()
	_, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("unknown job %q", name))
	}
	return s.runs.ListRecent(ctx, name, limit)
}

// runDue dispatches every job whose fire time has passed and whose last
// run started before today. Each due job runs in its own goroutine.
func (s *Scheduler) runDue(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		// A job still running from an earlier tick has no ledger row
		// update yet; skip it instead of racing runJob's conflict check
		s.mu.Lock()
		alreadyRunning := s.running[job.Name]
		s.mu.Unlock()
		if alreadyRunning {
			continue
		}

		due, err := s.isDue(ctx, job)
		if err != nil {
			log.Error().Err(err).Str("job_name", job.Name).Msg("failed to check job schedule")
			continue
		}
		if !due {
			continue
		}

		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			if err := s.runJob(ctx, job, false); err != nil {
				log.Error().Err(err).Str("job_name", job.Name).Msg("scheduled job failed")
			}
		}(job)
	}
}

func (s *Scheduler) isDue(ctx context.Context, job *Job) (bool, error) {
	fireAt, err := parseFireTime(job.At)
	if err != nil {
		return false, err
	}

	now := s.clk.Now()
	today := s.clk.Today()
	if now.Before(today.Add(fireAt)) {
		return false, nil
	}

	last, err := s.runs.GetLastRun(ctx, job.Name)
	if err != nil {
		return false, err
	}
	if last != nil && !clock.Midnight(last.StartedAt).Before(today) {
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, force bool) error {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		return apperrors.NewConflictError(fmt.Sprintf("job %q is already running", job.Name))
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	handle, err := StartRun(ctx, s.runs, s.clk, s.metrics, job.Name)
	if err != nil {
		return err
	}

	log.Info().Str("job_name", job.Name).Bool("force", force).Msg("job started")

	counters, runErr := runGuarded(ctx, job, force)
	if runErr != nil {
		handle.Fail(ctx, counters, runErr)
		return runErr
	}

	handle.Complete(ctx, counters)
	log.Info().
		Str("job_name", job.Name).
		Int("processed", counters.Processed).
		Int("success", counters.Success).
		Int("failed", counters.Failed).
		Msg("job completed")
	return nil
}

// runGuarded converts a panicking job body into a failed run
func runGuarded(ctx context.Context, job *Job, force bool) (counters Counters, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx, force)
}

func parseFireTime(at string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 0, apperrors.NewValidationError(fmt.Sprintf("invalid fire time %q, want HH:MM", at))
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
