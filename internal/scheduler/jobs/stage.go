package jobs

import (
	"context"
	"strings"

	"github.com/wonny/dva-forecast/internal/pipeline"
	"github.com/wonny/dva-forecast/pkg/config"
)

// StageRunner pipeline.Runner
type StageRunner interface {
	RunAll(ctx context.Context, stages []string) ([]*pipeline.Report, error)
}

// StageJob runs one or more pipeline stages in order under one run id
type StageJob struct {
	runner   StageRunner
	stages   []string
	schedule string
}

// NewStageJob creates a stage job
func NewStageJob(runner StageRunner, schedule string, stages ...string) *StageJob {
	return &StageJob{
		runner:   runner,
		stages:   stages,
		schedule: schedule,
	}
}

// Name returns the job name (dva_<stage>[_<stage>...])
func (j *StageJob) Name() string {
	return "dva_" + strings.Join(j.stages, "_")
}

// Schedule returns the cron schedule
func (j *StageJob) Schedule() string {
	return j.schedule
}

// Run executes the stages
func (j *StageJob) Run(ctx context.Context) error {
	_, err := j.runner.RunAll(ctx, j.stages)
	return err
}

// StageJobs 기본 스케줄 작업 목록
// - optimize: 주간 재튜닝
// - generate → postprocess: 일간 예측 갱신
// - validate: 일간 정확도 측정
func StageJobs(runner StageRunner, sc config.ScheduleConfig) []*StageJob {
	return []*StageJob{
		NewStageJob(runner, sc.Optimize, config.StageOptimize),
		NewStageJob(runner, sc.Generate, config.StageGenerate, config.StagePostprocess),
		NewStageJob(runner, sc.Validate, config.StageValidate),
	}
}
