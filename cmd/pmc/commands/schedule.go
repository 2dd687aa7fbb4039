package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"pmcautomation/cmd/pmc/globals"
	"pmcautomation/cmd/pmc/utils"
	"pmcautomation/internal/components/assert"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/schedule"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var jobsPath *string

func init() {
	jobsPath = scheduleCmd.PersistentFlags().String("jobs", "jobs.json5", "The json5 list of jobs, each with a name, a cron and pmc args.")

	scheduleCmd.AddCommand(scheduleListCmd, scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Runs pmc commands on cron schedules.",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list [--jobs jobs.json5]",
	Short: "Lists the jobs and when they run next.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value := globals.Get(cmd.Context())
		jobs, err := schedule.LoadJobs(*jobsPath)
		if err != nil {
			return err
		}
		upcoming, err := schedule.Next(jobs, value.Clock.Now())
		if err != nil {
			return err
		}

		t := utils.NewTable()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Job", "Cron", "Next run", "Args"})
		for _, u := range upcoming {
			t.AppendRow(table.Row{u.Job.Name, u.Job.Cron, u.Next.Format(time.DateTime), fmt.Sprint(u.Job.Args)})
		}
		t.Render()
		return nil
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [--jobs jobs.json5]",
	Short: "Runs the jobs until interrupted, each run is a separate pmc process.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		value := globals.Get(ctx)
		jobs, err := schedule.LoadJobs(*jobsPath)
		if err != nil {
			return err
		}
		executable, err := os.Executable()
		if err != nil {
			return err
		}

		cron := chrono.NewStandardCron(value.Clock, value.Tel)
		scheduler := schedule.NewScheduler(cron, value.Clock, value.Tel)
		slog.Info("scheduling jobs", "count", len(jobs), "jobs", *jobsPath)
		return scheduler.Run(ctx, jobs, processRunner(executable, *configPath))
	},
}

// processRunner runs each job as `<executable> --config <config> <args...>`.
func processRunner(executable, config string) schedule.Runner {
	assert.NotEmpty("schedule", "executable", executable)
	return func(ctx context.Context, job schedule.Job) error {
		args := append([]string{"--config", config}, job.Args...)
		process := exec.CommandContext(ctx, executable, args...)
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		slog.Info("running job", "job", job.Name)
		return process.Run()
	}
}
