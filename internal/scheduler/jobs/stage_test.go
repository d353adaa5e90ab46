package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/internal/pipeline"
	"github.com/wonny/dva-forecast/pkg/config"
)

type recordingRunner struct {
	calls [][]string
	err   error
}

func (r *recordingRunner) RunAll(_ context.Context, stages []string) ([]*pipeline.Report, error) {
	r.calls = append(r.calls, stages)
	return nil, r.err
}

func TestStageJobs(t *testing.T) {
	runner := &recordingRunner{}
	sc := config.ScheduleConfig{Optimize: "0 0 2 * * 0", Generate: "0 0 4 * * *", Validate: "0 30 6 * * *"}

	js := StageJobs(runner, sc)
	require.Len(t, js, 3)

	assert.Equal(t, "dva_optimize", js[0].Name())
	assert.Equal(t, "0 0 2 * * 0", js[0].Schedule())
	assert.Equal(t, "dva_generate_postprocess", js[1].Name())
	assert.Equal(t, "dva_validate", js[2].Name())

	require.NoError(t, js[1].Run(context.Background()))
	assert.Equal(t, [][]string{{config.StageGenerate, config.StagePostprocess}}, runner.calls)
}

func TestStageJob_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	job := NewStageJob(&recordingRunner{err: boom}, "@daily", config.StageValidate)
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}
