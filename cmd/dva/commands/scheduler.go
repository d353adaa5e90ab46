package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/dva-forecast/internal/scheduler"
	"github.com/wonny/dva-forecast/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/dva scheduler start
  go run ./cmd/dva scheduler list
  go run ./cmd/dva scheduler run dva_validate`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- dva_optimize: OPTIMIZE_SCHEDULE (기본 일요일 02:00)
- dva_generate_postprocess: GENERATE_SCHEDULE (기본 매일 04:00)
- dva_validate: VALIDATE_SCHEDULE (기본 매일 06:30)

실패한 작업은 재시도하지 않고 다음 주기에 다시 실행됩니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// initScheduler 스테이지 작업 등록
func initScheduler(d *deps) (*scheduler.Scheduler, error) {
	sched := scheduler.New(d.log)
	for _, job := range jobs.StageJobs(d.runner, d.cfg.Schedule) {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== DVA Forecast Scheduler ===")

	d, err := initDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	<-ctx.Done()

	sched.Stop()
	printJobSummary(sched)
	return nil
}

// printJobSummary 종료 시 작업별 실행/실패 분류 요약
func printJobSummary(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	PrintSeparator()
	for _, name := range sched.GetAllJobs() {
		s := stats[name]
		PrintKeyValue(name, fmt.Sprintf("%d runs, %d failed", s.TotalRuns, s.FailureCount), 26)
		for kind, n := range s.FailureKinds {
			PrintKeyValue("  "+kind, fmt.Sprintf("%d", n), 26)
		}
	}
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := initDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	stats := sched.GetJobStats()
	widths := []int{26, 16, 25}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, name := range sched.GetAllJobs() {
		s := stats[name]
		next := "-"
		if s.NextRun != nil {
			next = s.NextRun.Format(time.RFC3339)
		}
		PrintTableRow([]string{name, s.Schedule, next}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	d, err := initDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return err
	}

	jobName := args[0]
	PrintStageHeader(jobName)
	if err := sched.RunJob(jobName); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("%s completed", jobName))
	return nil
}
