package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/forecast"
	"github.com/wonny/dva-forecast/internal/optimize"
	"github.com/wonny/dva-forecast/internal/searchspace"
	"github.com/wonny/dva-forecast/internal/storage"
	"github.com/wonny/dva-forecast/pkg/config"
	"github.com/wonny/dva-forecast/pkg/logger"
	"github.com/wonny/dva-forecast/pkg/redis"
)

// Publisher 정확도 점수 외부 전송 (Pushgateway)
type Publisher interface {
	Publish(ctx context.Context, scores contracts.AccuracyScores) error
}

// HistorySink 실행 이력 미러 (forecast.Repository)
type HistorySink interface {
	SaveRun(ctx context.Context, run forecast.RunRecord) error
	SaveBestParams(ctx context.Context, runID string, hp contracts.HyperparameterSet, loss float64, trials, failed int) error
	SaveForecast(ctx context.Context, runID, artifact string, recs []contracts.ForecastRecord) error
	SaveScores(ctx context.Context, runID string, scores contracts.AccuracyScores) error
}

// FullRun 순서 (dva run)
var FullRun = []string{
	config.StageOptimize,
	config.StageGenerate,
	config.StagePostprocess,
	config.StageValidate,
}

// Report 스테이지 결과 요약 (실행한 스테이지 필드만 채워짐)
type Report struct {
	RunID    string
	Stage    string
	Duration time.Duration

	Decision *contracts.SignificanceDecision
	Optimize *optimize.Result
	Generate *forecast.GenerateResult
	Records  int
	Scores   contracts.AccuracyScores
}

// Runner 스테이지 실행기
// ⭐ SSOT: 스테이지 간 전달은 영속화된 아티팩트로만
type Runner struct {
	cfg       *config.Config
	log       *logger.Logger
	locker    *redis.StageLocker
	history   HistorySink
	publisher Publisher
	newRunID  func() string
}

// Option Runner 구성 옵션
type Option func(*Runner)

// WithLocker 스테이지 락 사용
func WithLocker(l *redis.StageLocker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithHistory DB 이력 미러 사용
func WithHistory(h HistorySink) Option {
	return func(r *Runner) { r.history = h }
}

// WithPublisher 점수 전송기 지정 (validate 필수)
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner creates a stage runner
func NewRunner(cfg *config.Config, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		log:      log,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stage runs a single stage under a fresh run id
func (r *Runner) Stage(ctx context.Context, stage string) (*Report, error) {
	return r.execute(ctx, r.newRunID(), stage)
}

// RunAll runs the stages in order under one run id, stopping at the first
// failure. Missing keys for any stage fail the run before the first stage.
func (r *Runner) RunAll(ctx context.Context, stages []string) ([]*Report, error) {
	if err := r.cfg.RequireStages(stages); err != nil {
		return nil, err
	}
	runID := r.newRunID()
	reports := make([]*Report, 0, len(stages))
	for _, stage := range stages {
		rep, err := r.execute(ctx, runID, stage)
		if rep != nil {
			reports = append(reports, rep)
		}
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func (r *Runner) execute(ctx context.Context, runID, stage string) (*Report, error) {
	if err := r.cfg.RequireStage(stage); err != nil {
		return nil, err
	}

	log := r.log.WithRunID(runID).WithStage(stage)
	rep := &Report{RunID: runID, Stage: stage}

	if r.locker != nil {
		lock, err := r.locker.Acquire(ctx, stage)
		if err != nil {
			log.WithError(err).Error("Stage lock not acquired")
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Stage lock release failed")
			}
		}()
	}

	started := time.Now()
	log.Info("Stage started")

	var err error
	switch stage {
	case config.StageSignificance:
		err = r.significance(ctx, rep, log)
	case config.StageOptimize:
		err = r.optimize(ctx, rep, log)
	case config.StageGenerate:
		err = r.generate(ctx, rep, log)
	case config.StagePostprocess:
		err = r.postprocess(ctx, rep, log)
	case config.StageValidate:
		err = r.validate(ctx, rep, log)
	}
	rep.Duration = time.Since(started)

	r.recordRun(ctx, rep, started, err, log)

	if err != nil {
		kind, _ := contracts.KindOf(err)
		log.WithFields(map[string]interface{}{
			"kind":     string(kind),
			"duration": rep.Duration.String(),
		}).WithError(err).Error("Stage failed")
		return rep, err
	}

	log.WithField("duration", rep.Duration.String()).Info("Stage completed")
	return rep, nil
}

// =============================================================================
// Stages
// =============================================================================

func (r *Runner) significance(ctx context.Context, rep *Report, log *logger.Logger) error {
	series, err := storage.ReadRevenueSeries(r.cfg.Paths.AdRevenueData)
	if err != nil {
		return err
	}
	cal, err := storage.ReadEventCalendar(r.cfg.Paths.PrimeDays)
	if err != nil {
		return err
	}

	d, err := forecast.NewSignificanceTester(log.Zerolog()).Test(ctx, series, cal)
	if err != nil {
		return err
	}
	rep.Decision = &d
	return nil
}

func (r *Runner) optimize(ctx context.Context, rep *Report, log *logger.Logger) error {
	obs, err := storage.ReadTrainingSeries(r.cfg.Paths.TrainingData)
	if err != nil {
		return err
	}

	space, err := r.searchSpace(log)
	if err != nil {
		return err
	}
	opt, err := optimize.New(
		space,
		optimize.NewTPE(space, optimize.DefaultTPEConfig(), r.cfg.Optimize.Seed),
		optimize.CrossValidatedMAPE(forecast.ToPoints(obs), optimize.DefaultCVWindow()),
		optimize.Config{Trials: r.cfg.Optimize.Trials, Parallelism: r.cfg.Optimize.Parallelism},
		log.Zerolog(),
	)
	if err != nil {
		// 시도를 하나도 평가할 수 없는 구성
		return contracts.NewError(contracts.KindOptimizationExhausted, "optimize setup", err)
	}

	res, err := opt.Run(ctx)
	if err != nil {
		return err
	}
	rep.Optimize = res

	// 완료된 결과만 한 번 기록
	if err := storage.WriteBestParams(r.cfg.Paths.BestParams, res.Best); err != nil {
		return err
	}

	r.mirror(ctx, log, "best params", func(ctx context.Context, h HistorySink) error {
		return h.SaveBestParams(ctx, rep.RunID, res.Best, res.BestLoss, len(res.Trials), res.Failed)
	})
	return nil
}

// searchSpace returns the default space unless OPTIMIZE_SPACE_PATH is set
func (r *Runner) searchSpace(log *logger.Logger) (optimize.Space, error) {
	if r.cfg.Optimize.SpacePath == "" {
		return optimize.DefaultSpace(), nil
	}

	f, err := searchspace.Load(r.cfg.Optimize.SpacePath)
	if err != nil {
		return nil, err
	}
	hash, err := searchspace.Hash(f)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"path":    r.cfg.Optimize.SpacePath,
		"version": f.Version,
		"hash":    hash,
	}).Info("Search space loaded")

	return f.Space(), nil
}

func (r *Runner) generate(ctx context.Context, rep *Report, log *logger.Logger) error {
	series, err := storage.ReadRevenueSeries(r.cfg.Paths.AdRevenueData)
	if err != nil {
		return err
	}

	var cal contracts.EventCalendar
	if r.cfg.Generate.EventGating {
		if cal, err = storage.ReadEventCalendar(r.cfg.Paths.PrimeDays); err != nil {
			return err
		}
	}

	hp, err := storage.ReadBestParams(r.cfg.Paths.BestParams)
	if err != nil {
		return err
	}

	gen := forecast.NewGenerator(
		forecast.NewSignificanceTester(log.Zerolog()),
		r.cfg.Generate.EventGating,
		log.Zerolog(),
	)
	res, err := gen.Generate(ctx, forecast.GenerateInput{Series: series, Calendar: cal, Params: hp})
	if err != nil {
		return err
	}
	rep.Generate = res
	rep.Records = len(res.Raw)

	if err := storage.WriteRawForecast(r.cfg.Paths.ForecastOutput, res.Raw); err != nil {
		return err
	}

	r.mirror(ctx, log, "raw forecast", func(ctx context.Context, h HistorySink) error {
		return h.SaveForecast(ctx, rep.RunID, "raw", res.Raw)
	})
	return nil
}

func (r *Runner) postprocess(ctx context.Context, rep *Report, log *logger.Logger) error {
	raw, err := storage.ReadForecast(r.cfg.Paths.ForecastOutput, r.cfg.Generate.ProductID)
	if err != nil {
		return err
	}
	exclusions, err := storage.ReadExclusions(r.cfg.Paths.ProductsToRemove)
	if err != nil {
		return err
	}

	final := forecast.PostProcess(raw, exclusions)
	rep.Records = len(final)

	if err := storage.WriteFinalForecast(r.cfg.Paths.FinalForecast, final); err != nil {
		return err
	}

	log.WithFields(map[string]interface{}{
		"input":    len(raw),
		"output":   len(final),
		"excluded": len(exclusions),
	}).Info("Forecast post-processed")

	r.mirror(ctx, log, "final forecast", func(ctx context.Context, h HistorySink) error {
		return h.SaveForecast(ctx, rep.RunID, "final", final)
	})
	return nil
}

func (r *Runner) validate(ctx context.Context, rep *Report, log *logger.Logger) error {
	if r.publisher == nil {
		return contracts.Errorf(contracts.KindMetricsPublish, "validate", "no metrics publisher configured")
	}

	fcst, err := storage.ReadTable(r.cfg.Paths.ValidationForecast)
	if err != nil {
		return err
	}
	actual, err := storage.ReadTable(r.cfg.Paths.ActualValues)
	if err != nil {
		return err
	}

	scores, err := forecast.NewValidator(log.Zerolog()).Score(fcst, actual)
	if err != nil {
		return err
	}
	rep.Scores = scores

	// 점수 아티팩트 먼저 확정, 전송 실패는 그 뒤에 보고
	if err := storage.WriteScores(r.cfg.Paths.MAPEScores, scores); err != nil {
		return err
	}

	r.mirror(ctx, log, "scores", func(ctx context.Context, h HistorySink) error {
		return h.SaveScores(ctx, rep.RunID, scores)
	})

	pushCtx, cancel := context.WithTimeout(ctx, r.cfg.Metrics.Timeout)
	defer cancel()
	return r.publisher.Publish(pushCtx, scores)
}

// =============================================================================
// History mirror
// =============================================================================

// mirror writes to the history sink after the artifact is committed.
// CSV가 원본이므로 미러 실패는 경고만
func (r *Runner) mirror(ctx context.Context, log *logger.Logger, what string, fn func(context.Context, HistorySink) error) {
	if r.history == nil {
		return
	}
	if err := fn(ctx, r.history); err != nil {
		log.WithError(err).Warn(fmt.Sprintf("History mirror failed: %s", what))
	}
}

func (r *Runner) recordRun(ctx context.Context, rep *Report, started time.Time, runErr error, log *logger.Logger) {
	run := forecast.RunRecord{
		RunID:      rep.RunID,
		Stage:      rep.Stage,
		Status:     "success",
		StartedAt:  started,
		FinishedAt: started.Add(rep.Duration),
	}
	if runErr != nil {
		run.Status = "failed"
		run.Error = runErr.Error()
		if kind, ok := contracts.KindOf(runErr); ok {
			run.ErrorKind = string(kind)
		}
	}

	r.mirror(context.WithoutCancel(ctx), log, "run record", func(ctx context.Context, h HistorySink) error {
		return h.SaveRun(ctx, run)
	})
}
