package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/pkg/config"
	"github.com/wonny/dva-forecast/pkg/logger"
)

type countingJob struct {
	name  string
	calls int
	err   error
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return "0 0 4 * * *" }
func (j *countingJob) Run(ctx context.Context) error {
	j.calls++
	return j.err
}

func newTestScheduler() *Scheduler {
	return New(logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"}))
}

func TestScheduler_AddJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "dva_validate"}))
	require.NoError(t, s.AddJob(&countingJob{name: "dva_generate"}))

	assert.Error(t, s.AddJob(&countingJob{name: "dva_validate"}))
	assert.Equal(t, []string{"dva_generate", "dva_validate"}, s.GetAllJobs())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := newTestScheduler()
	err := s.AddJob(&badScheduleJob{})
	assert.Error(t, err)
	assert.Empty(t, s.GetAllJobs())
}

type badScheduleJob struct{ countingJob }

func (badScheduleJob) Name() string     { return "bad" }
func (badScheduleJob) Schedule() string { return "every tuesday" }

func TestScheduler_RunJobDoesNotRetry(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "dva_validate", err: fmt.Errorf("validate: %w",
		contracts.Errorf(contracts.KindNoComparableData, "score", "fcst_q1 has no comparable points"))}
	require.NoError(t, s.AddJob(job))

	err := s.RunJob("dva_validate")
	require.Error(t, err)
	assert.Equal(t, 1, job.calls)

	history, err := s.GetJobHistory("dva_validate")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.False(t, history.Results[0].Success)
	assert.Contains(t, history.Results[0].Error, "fcst_q1")
	assert.Equal(t, "NoComparableData", history.Results[0].ErrorKind)

	stats := s.GetJobStats()["dva_validate"]
	assert.Equal(t, map[string]int{"NoComparableData": 1}, stats.FailureKinds)
}

func TestScheduler_Stats(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "dva_optimize"}
	require.NoError(t, s.AddJob(ok))

	require.NoError(t, s.RunJob("dva_optimize"))
	require.NoError(t, s.RunJob("dva_optimize"))

	s.Start()
	defer s.Stop()

	stats := s.GetJobStats()["dva_optimize"]
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "dva_validate"}))

	require.NoError(t, s.RemoveJob("dva_validate"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("dva_validate"))
	assert.Error(t, s.RunJob("dva_validate"))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 105; i++ {
		h.AddResult(JobResult{Success: i%5 != 0})
	}
	h.Results[0].ErrorKind = "OptimizationExhausted"

	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Len(t, h.GetFailedResults(), 20)
	assert.InDelta(t, 0.8, h.GetSuccessRate(), 1e-9)
	assert.Equal(t, map[string]int{"OptimizationExhausted": 1, "unclassified": 19}, h.CountByKind())
}
