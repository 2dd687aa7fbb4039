package chrono

import (
	"context"
	"fmt"
	"pmcautomation/internal/components/telemetry"
	"time"

	"github.com/robfig/cron/v3"
)

// CronAPI is what anything that runs on a schedule depends on.
type CronAPI interface {
	// Cron registers `callback` to run on the standard 5 field `spec`.
	Cron(spec string, callback func()) error
	// Stop stops scheduling, the returned context is done once running
	// callbacks have returned.
	Stop() context.Context
}

// StandardCron implements CronAPI with `github.com/robfig/cron/v3`, evaluated
// in the clock's location. A callback still running when its next tick comes
// is skipped for that tick.
type StandardCron struct {
	cron *cron.Cron
}

func NewStandardCron(clock API, tel telemetry.API) StandardCron {
	logger := cronLogger{tel: tel}
	cronner := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(clock.Location()),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	cronner.Start()
	return StandardCron{cron: cronner}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

func (s StandardCron) Stop() context.Context {
	return s.cron.Stop()
}

// NextRun returns the first time after `from` that `spec` fires.
func NextRun(spec string, from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) pairs(keysAndValues []any) []any {
	params := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron: "+msg, l.pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken("cron", append([]any{fmt.Errorf("%s: %w", msg, err)}, l.pairs(keysAndValues)...)...)
}
