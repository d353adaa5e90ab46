package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/forecast"
	"github.com/wonny/dva-forecast/internal/metrics"
	"github.com/wonny/dva-forecast/internal/storage"
	"github.com/wonny/dva-forecast/pkg/config"
	"github.com/wonny/dva-forecast/pkg/logger"
	"github.com/wonny/dva-forecast/pkg/redis"
)

var day0 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeHistory 호출 기록용
type fakeHistory struct {
	mu        sync.Mutex
	runs      []forecast.RunRecord
	params    int
	forecasts map[string]int
	scores    contracts.AccuracyScores
	failWith  error
}

func (f *fakeHistory) SaveRun(_ context.Context, run forecast.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeHistory) SaveBestParams(context.Context, string, contracts.HyperparameterSet, float64, int, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params++
	return f.failWith
}

func (f *fakeHistory) SaveForecast(_ context.Context, _ string, artifact string, recs []contracts.ForecastRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forecasts == nil {
		f.forecasts = make(map[string]int)
	}
	f.forecasts[artifact] = len(recs)
	return f.failWith
}

func (f *fakeHistory) SaveScores(_ context.Context, _ string, scores contracts.AccuracyScores) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = scores
	return f.failWith
}

type fakePublisher struct {
	got contracts.AccuracyScores
	err error
}

func (p *fakePublisher) Publish(_ context.Context, scores contracts.AccuracyScores) error {
	p.got = scores
	return p.err
}

func testConfig(dir string) *config.Config {
	p := func(name string) string { return filepath.Join(dir, name) }
	return &config.Config{
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "json",
		Paths: config.PathsConfig{
			AdRevenueData:      p("ad_revenue.csv"),
			PrimeDays:          p("prime_days.csv"),
			BestParams:         p("best_params.csv"),
			TrainingData:       p("training.csv"),
			ForecastOutput:     p("forecast_raw.csv"),
			FinalForecast:      p("forecast_final.csv"),
			ProductsToRemove:   p("products_to_remove.csv"),
			ValidationForecast: p("validation_forecast.csv"),
			ActualValues:       p("actuals.csv"),
			MAPEScores:         p("mape_scores.csv"),
		},
		Metrics:  config.MetricsConfig{Gateway: "http://pushgateway:9091", Job: "dva_forecast_validation", Timeout: time.Second},
		Optimize: config.OptimizeConfig{Trials: 2, Parallelism: 2, Seed: 42},
		Generate: config.GenerateConfig{EventGating: true, ProductID: "sp"},
	}
}

func testLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg)
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeSeries(t *testing.T, path, dateCol, valueCol string, n int, f func(i int) float64) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "%s,%s\n", dateCol, valueCol)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%g\n", day0.AddDate(0, 0, i).Format(contracts.DateLayout), f(i))
	}
	writeCSV(t, path, b.String())
}

func seedGenerateInputs(t *testing.T, cfg *config.Config) {
	events := map[int]bool{100: true, 101: true, 280: true, 281: true}
	writeSeries(t, cfg.Paths.AdRevenueData, "Date", "Revenue", 400, func(i int) float64 {
		if events[i] {
			return 400
		}
		return 100 + 5*math.Sin(2*math.Pi*float64(i)/91.25)
	})
	writeCSV(t, cfg.Paths.PrimeDays, "EventDate\n2022-04-11\n2022-10-08\n")
	require.NoError(t, storage.WriteBestParams(cfg.Paths.BestParams, contracts.HyperparameterSet{
		ChangepointPriorScale: 0.05, SeasonalityPriorScale: 1, FourierOrder: 5,
	}))
}

func TestRunner_GenerateThenPostprocess(t *testing.T) {
	cfg := testConfig(t.TempDir())
	seedGenerateInputs(t, cfg)
	writeCSV(t, cfg.Paths.ProductsToRemove, "ad_product\nsb\n")

	history := &fakeHistory{}
	r := NewRunner(cfg, testLogger(cfg), WithHistory(history))

	rep, err := r.Stage(context.Background(), config.StageGenerate)
	require.NoError(t, err)
	assert.True(t, rep.Generate.UsedHolidays)
	assert.Equal(t, 400+contracts.ForecastHorizonDays, rep.Records)

	raw, err := storage.ReadForecast(cfg.Paths.ForecastOutput, "")
	require.NoError(t, err)
	assert.Len(t, raw, rep.Records)

	rep, err = r.Stage(context.Background(), config.StagePostprocess)
	require.NoError(t, err)

	final, err := storage.ReadForecast(cfg.Paths.FinalForecast, "")
	require.NoError(t, err)
	assert.Len(t, final, rep.Records)
	for _, rec := range final {
		assert.Equal(t, "sp", rec.ProductID)
		assert.GreaterOrEqual(t, rec.Predicted, contracts.RevenueFloor)
	}

	assert.Equal(t, 580, history.forecasts["raw"])
	assert.Equal(t, 580, history.forecasts["final"])
	require.Len(t, history.runs, 2)
	assert.Equal(t, "success", history.runs[0].Status)
	assert.NotEqual(t, history.runs[0].RunID, history.runs[1].RunID)
}

func TestRunner_PostprocessExcludesConfiguredProduct(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Generate.ProductID = "sb"
	writeCSV(t, cfg.Paths.ForecastOutput, "ds,yhat\n2024-01-01,0.2\n2024-01-02,5\n")
	writeCSV(t, cfg.Paths.ProductsToRemove, "ad_product\nsb\n")

	rep, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StagePostprocess)
	require.NoError(t, err)
	assert.Zero(t, rep.Records)

	final, err := storage.ReadForecast(cfg.Paths.FinalForecast, "")
	require.NoError(t, err)
	assert.Empty(t, final)
}

func TestRunner_ValidatePersistsBeforePublishing(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ValidationForecast, "fcst_q1,fcst_q2\n110,95\n180,\n50,105\n")
	writeCSV(t, cfg.Paths.ActualValues, "actual_q1,actual_q2\n100,100\n200,100\n0,100\n")

	pub := &fakePublisher{err: contracts.Errorf(contracts.KindMetricsPublish, "push", "gateway down")}
	history := &fakeHistory{}
	r := NewRunner(cfg, testLogger(cfg), WithPublisher(pub), WithHistory(history))

	rep, err := r.Stage(context.Background(), config.StageValidate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrMetricsPublish))

	// 전송 실패여도 점수 아티팩트는 확정됨
	scores, err := storage.ReadScores(cfg.Paths.MAPEScores)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, scores["fcst_q1"], 1e-9)
	assert.InDelta(t, 5.0, scores["fcst_q2"], 1e-9)
	assert.Equal(t, rep.Scores, pub.got)
	assert.Equal(t, scores, history.scores)

	require.Len(t, history.runs, 1)
	assert.Equal(t, "failed", history.runs[0].Status)
	assert.Equal(t, string(contracts.KindMetricsPublish), history.runs[0].ErrorKind)
}

func TestRunner_ValidatePushesGauges(t *testing.T) {
	var paths []string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	cfg := testConfig(t.TempDir())
	cfg.Metrics.Gateway = gateway.URL
	writeCSV(t, cfg.Paths.ValidationForecast, "fcst_q1\n110\n")
	writeCSV(t, cfg.Paths.ActualValues, "actual_q1\n100\n")

	log := testLogger(cfg)
	pub := metrics.NewPublisher(cfg.Metrics.Gateway, cfg.Metrics.Job, http.DefaultClient, log.Zerolog())

	_, err := NewRunner(cfg, log, WithPublisher(pub)).Stage(context.Background(), config.StageValidate)
	require.NoError(t, err)
	assert.Equal(t, []string{"/metrics/job/dva_forecast_validation"}, paths)
}

func TestRunner_ValidateNoComparableDataWritesNothing(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ValidationForecast, "fcst_q1\n110\n")
	writeCSV(t, cfg.Paths.ActualValues, "actual_q1\n0\n")

	pub := &fakePublisher{}
	_, err := NewRunner(cfg, testLogger(cfg), WithPublisher(pub)).Stage(context.Background(), config.StageValidate)
	assert.True(t, errors.Is(err, contracts.ErrNoComparableData))
	assert.Nil(t, pub.got)

	_, statErr := os.Stat(cfg.Paths.MAPEScores)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunner_OptimizeExhaustedLeavesNoParams(t *testing.T) {
	cfg := testConfig(t.TempDir())
	// 교차검증 최소 기간 미달 → 모든 시도 실패
	writeSeries(t, cfg.Paths.TrainingData, "ds", "y", 200, func(i int) float64 { return 100 })

	_, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StageOptimize)
	assert.True(t, errors.Is(err, contracts.ErrOptimizationExhausted))

	_, statErr := os.Stat(cfg.Paths.BestParams)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunner_OptimizeRejectsInvalidSearchSpace(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeSeries(t, cfg.Paths.TrainingData, "ds", "y", 200, func(i int) float64 { return 100 })
	cfg.Optimize.SpacePath = filepath.Join(filepath.Dir(cfg.Paths.TrainingData), "space.yaml")
	require.NoError(t, os.WriteFile(cfg.Optimize.SpacePath, []byte("version: v1\nfourier_order: [7]\n"), 0o644))

	_, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StageOptimize)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrArtifactIO))
	assert.Contains(t, err.Error(), "fourier_order")
}

func TestRunner_OptimizeWritesBestParams(t *testing.T) {
	if testing.Short() {
		t.Skip("cross-validated optimization")
	}
	cfg := testConfig(t.TempDir())
	writeSeries(t, cfg.Paths.TrainingData, "ds", "y", 1100, func(i int) float64 {
		return 200 + 0.1*float64(i) + 10*math.Sin(2*math.Pi*float64(i)/7)
	})

	history := &fakeHistory{failWith: errors.New("db down")}
	rep, err := NewRunner(cfg, testLogger(cfg), WithHistory(history)).Stage(context.Background(), config.StageOptimize)
	require.NoError(t, err)
	assert.Len(t, rep.Optimize.Trials, 2)

	hp, err := storage.ReadBestParams(cfg.Paths.BestParams)
	require.NoError(t, err)
	assert.Equal(t, rep.Optimize.Best, hp)

	// 미러 실패는 스테이지를 실패시키지 않음
	assert.Equal(t, 1, history.params)
}

func TestRunner_SignificanceStage(t *testing.T) {
	cfg := testConfig(t.TempDir())
	seedGenerateInputs(t, cfg)

	rep, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StageSignificance)
	require.NoError(t, err)
	require.NotNil(t, rep.Decision)
	assert.True(t, rep.Decision.Significant)
	assert.Equal(t, day0.AddDate(0, 0, 100), rep.Decision.EventDate)
}

func TestRunner_MissingKeysFailFast(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Paths.ActualValues = ""
	cfg.Metrics.Gateway = ""

	_, err := NewRunner(cfg, testLogger(cfg), WithPublisher(&fakePublisher{})).Stage(context.Background(), config.StageValidate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACTUAL_VALUES_PATH")
	assert.Contains(t, err.Error(), "PROMETHEUS_GATEWAY")
}

func TestRunner_HeldLockFailsStage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer client.Close()

	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ForecastOutput, "ds,yhat\n2024-01-01,5\n")

	locker := redis.NewStageLocker(client, "dva", time.Minute)
	held, err := locker.Acquire(context.Background(), config.StagePostprocess)
	require.NoError(t, err)

	r := NewRunner(cfg, testLogger(cfg), WithLocker(locker))
	_, err = r.Stage(context.Background(), config.StagePostprocess)
	assert.True(t, errors.Is(err, redis.ErrLockHeld))

	require.NoError(t, held.Release(context.Background()))
	_, err = r.Stage(context.Background(), config.StagePostprocess)
	require.NoError(t, err)
	assert.False(t, mr.Exists("dva:lock:postprocess"))
}

func TestRunner_RunAllStopsAtFirstFailure(t *testing.T) {
	cfg := testConfig(t.TempDir())
	seedGenerateInputs(t, cfg)
	// 검증 입력 없음
	cfg.Paths.ActualValues = filepath.Join(t.TempDir(), "missing.csv")

	history := &fakeHistory{}
	pub := &fakePublisher{}
	r := NewRunner(cfg, testLogger(cfg), WithHistory(history), WithPublisher(pub))

	reports, err := r.RunAll(context.Background(), []string{
		config.StageGenerate, config.StagePostprocess, config.StageValidate,
	})
	require.Error(t, err)
	assert.Equal(t, contracts.KindArtifactIO, kindOf(err))
	require.Len(t, reports, 3)

	// 같은 run id 공유
	for _, rep := range reports {
		assert.Equal(t, reports[0].RunID, rep.RunID)
	}
	require.Len(t, history.runs, 3)
	assert.Equal(t, "failed", history.runs[2].Status)
	assert.Nil(t, pub.got)
}

func TestRunner_PostprocessRejectsCorruptRaw(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ForecastOutput, "ds,yhat\n2024-01-01,5\n2024-01-02,garbage\n2024-01-03,\n")

	_, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StagePostprocess)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrArtifactIO))
	assert.Contains(t, err.Error(), "garbage")

	// 계산하지 않은 값을 기록하지 않음
	_, statErr := os.Stat(cfg.Paths.FinalForecast)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunner_PostprocessFinalArtifactIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	writeCSV(t, cfg.Paths.ForecastOutput,
		"ds,yhat,product_id\n2024-01-01,-4,sp\n2024-01-02,NaN,sp\n2024-01-03,0.7,sp\n2024-01-03,9,sb\n2024-01-04,12.25,sp\n")
	writeCSV(t, cfg.Paths.ProductsToRemove, "ad_product\nsb\n")

	_, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StagePostprocess)
	require.NoError(t, err)
	once, err := os.ReadFile(cfg.Paths.FinalForecast)
	require.NoError(t, err)

	// final 아티팩트를 다시 후처리
	again := *cfg
	again.Paths.ForecastOutput = cfg.Paths.FinalForecast
	again.Paths.FinalForecast = filepath.Join(dir, "forecast_final_again.csv")
	_, err = NewRunner(&again, testLogger(&again)).Stage(context.Background(), config.StagePostprocess)
	require.NoError(t, err)
	twice, err := os.ReadFile(again.Paths.FinalForecast)
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
	assert.Equal(t,
		"ds,yhat,product_id\n2024-01-01,1.1,sp\n2024-01-02,1.1,sp\n2024-01-03,1.1,sp\n2024-01-04,12.25,sp\n",
		string(once))
}

func TestRunner_ValidateRejectsCorruptActual(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ValidationForecast, "fcst_q1\n110\n90\n")
	writeCSV(t, cfg.Paths.ActualValues, "actual_q1\n100\nN/A-corrupt\n")

	pub := &fakePublisher{}
	_, err := NewRunner(cfg, testLogger(cfg), WithPublisher(pub)).Stage(context.Background(), config.StageValidate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrArtifactIO))
	assert.Nil(t, pub.got)

	_, statErr := os.Stat(cfg.Paths.MAPEScores)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunner_StageFailuresCarryKind(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeCSV(t, cfg.Paths.ValidationForecast, "fcst_q1\n110\n")
	writeCSV(t, cfg.Paths.ActualValues, "actual_q1\n100\n")

	_, err := NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StageValidate)
	assert.Equal(t, contracts.KindMetricsPublish, kindOf(err))

	cfg.Optimize.Trials = 0
	writeSeries(t, cfg.Paths.TrainingData, "ds", "y", 10, func(i int) float64 { return 100 })
	_, err = NewRunner(cfg, testLogger(cfg)).Stage(context.Background(), config.StageOptimize)
	assert.Equal(t, contracts.KindOptimizationExhausted, kindOf(err))
	assert.Contains(t, err.Error(), "optimize setup")
}

func TestRunner_RunAllChecksEveryStageFirst(t *testing.T) {
	cfg := testConfig(t.TempDir())
	seedGenerateInputs(t, cfg)
	cfg.Paths.ValidationForecast = ""

	history := &fakeHistory{}
	reports, err := NewRunner(cfg, testLogger(cfg), WithHistory(history)).RunAll(context.Background(), []string{
		config.StageGenerate, config.StagePostprocess, config.StageValidate,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_FORECAST_PATH")
	assert.Empty(t, reports)
	assert.Empty(t, history.runs)

	_, statErr := os.Stat(cfg.Paths.ForecastOutput)
	assert.True(t, os.IsNotExist(statErr))
}

func kindOf(err error) contracts.ErrorKind {
	kind, _ := contracts.KindOf(err)
	return kind
}
