package schedule

import (
	"context"
	"fmt"
	"os"
	"pmcautomation/internal/components/assert"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/components/telemetry"
	"time"

	"github.com/titanous/json5"
)

const (
	report_scheduler_run  = "scheduler.run"
	report_scheduler_runs = "scheduler.runs"
)

// Job is a command line run on a cron schedule, Args are the arguments of a
// pmc invocation like ["query", "ux", "--id", "9062", "--out", "po.csv"].
type Job struct {
	Name string   `json:"name"`
	Cron string   `json:"cron"`
	Args []string `json:"args"`
}

// LoadJobs reads a json5 list of jobs and validates them.
func LoadJobs(path string) ([]Job, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var jobs []Job
	err = json5.Unmarshal(contents, &jobs)
	if err != nil {
		return nil, fmt.Errorf("parse jobs %s: %w", path, err)
	}
	err = Validate(jobs)
	if err != nil {
		return nil, fmt.Errorf("jobs %s: %w", path, err)
	}
	return jobs, nil
}

func Validate(jobs []Job) error {
	seen := make(map[string]struct{}, len(jobs))
	for i, job := range jobs {
		if job.Name == "" {
			return fmt.Errorf("job %d has no name", i)
		}
		if _, ok := seen[job.Name]; ok {
			return fmt.Errorf("job '%s' is defined twice", job.Name)
		}
		seen[job.Name] = struct{}{}
		if len(job.Args) == 0 {
			return fmt.Errorf("job '%s' has no args", job.Name)
		}
		_, err := chrono.NextRun(job.Cron, time.Time{})
		if err != nil {
			return fmt.Errorf("job '%s' cron '%s': %w", job.Name, job.Cron, err)
		}
	}
	return nil
}

// Upcoming is the next time a job fires.
type Upcoming struct {
	Job  Job
	Next time.Time
}

// Next returns when each job fires next after `from`, in job order.
func Next(jobs []Job, from time.Time) ([]Upcoming, error) {
	out := make([]Upcoming, len(jobs))
	for i, job := range jobs {
		next, err := chrono.NextRun(job.Cron, from)
		if err != nil {
			return nil, err
		}
		out[i] = Upcoming{Job: job, Next: next}
	}
	return out, nil
}

// Runner performs a single run of a job.
type Runner func(ctx context.Context, job Job) error

type Scheduler struct {
	cron  chrono.CronAPI
	clock chrono.API
	tel   telemetry.API
}

func NewScheduler(cron chrono.CronAPI, clock chrono.API, tel telemetry.API) Scheduler {
	assert.NotNil("schedule", cron)
	return Scheduler{
		cron:  cron,
		clock: clock,
		tel:   telemetry.NewScopedAPI("schedule", tel),
	}
}

// Register adds every job to the cron, each tick calls `run` with `ctx`.
// Failed runs are reported, they never stop the other jobs.
func (s Scheduler) Register(ctx context.Context, jobs []Job, run Runner) error {
	for _, job := range jobs {
		var runs int64
		err := s.cron.Cron(job.Cron, func() {
			if ctx.Err() != nil {
				return
			}
			runs++
			start := s.clock.Now()
			s.tel.ReportDebug("starting job", "job", job.Name, "at", start)

			err := run(ctx, job)
			if err != nil {
				s.tel.ReportBroken(report_scheduler_run, fmt.Errorf("job %s: %w", job.Name, err))
				return
			}
			s.tel.ReportCount(report_scheduler_runs, runs)
			s.tel.ReportDebug("finished job", "job", job.Name, "took", s.clock.Now().Sub(start).String())
		})
		if err != nil {
			return fmt.Errorf("register job '%s': %w", job.Name, err)
		}
	}
	return nil
}

// Run registers the jobs and blocks until `ctx` is done, then waits for
// running jobs to return.
func (s Scheduler) Run(ctx context.Context, jobs []Job, run Runner) error {
	err := s.Register(ctx, jobs, run)
	if err != nil {
		<-s.cron.Stop().Done()
		return err
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
