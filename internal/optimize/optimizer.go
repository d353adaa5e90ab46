package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// Config 최적화 실행 설정
type Config struct {
	Trials      int // 총 시도 예산
	Parallelism int // 동시 평가 수 (1 = 순차)
}

// Result 최적화 결과
type Result struct {
	Best      contracts.HyperparameterSet
	BestLoss  float64
	BestTrial int
	Trials    []Trial
	Failed    int
	Duration  time.Duration
}

// Optimizer 하이퍼파라미터 탐색 코디네이터
// ⭐ SSOT: 전략의 trial history는 코디네이터만 갱신한다
type Optimizer struct {
	space     Space
	strategy  Strategy
	objective Objective
	cfg       Config
	log       zerolog.Logger
}

// New creates an optimizer
func New(space Space, strategy Strategy, objective Objective, cfg Config, log zerolog.Logger) (*Optimizer, error) {
	if err := space.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search space: %w", err)
	}
	if cfg.Trials <= 0 {
		return nil, fmt.Errorf("trial budget must be positive, got %d", cfg.Trials)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Optimizer{
		space:     space,
		strategy:  strategy,
		objective: objective,
		cfg:       cfg,
		log:       log.With().Str("component", "optimize.optimizer").Logger(),
	}, nil
}

// Run evaluates the full trial budget and returns the best trial.
// Ties keep the earliest trial. Nothing is persisted here; the caller writes
// the result once Run returns successfully.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{BestTrial: -1, BestLoss: math.Inf(1)}

	o.log.Info().
		Int("trials", o.cfg.Trials).
		Int("parallelism", o.cfg.Parallelism).
		Msg("optimization started")

	for next := 0; next < o.cfg.Trials; {
		batch := o.cfg.Parallelism
		if remaining := o.cfg.Trials - next; remaining < batch {
			batch = remaining
		}

		candidates := o.strategy.Suggest(batch)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("strategy returned no candidates at trial %d", next)
		}
		if len(candidates) > batch {
			candidates = candidates[:batch]
		}

		trials, err := o.evaluate(ctx, next, candidates)
		if err != nil {
			return nil, err
		}

		// 관측은 trial 번호 순서대로 코디네이터에서만
		for _, t := range trials {
			o.strategy.Observe(t)
			res.Trials = append(res.Trials, t)

			if t.State == TrialFailed {
				res.Failed++
				o.log.Warn().Err(t.Err).Int("trial", t.Number).Interface("params", t.Params).Msg("trial failed")
				continue
			}

			o.log.Debug().Int("trial", t.Number).Float64("loss", t.Loss).Interface("params", t.Params).Msg("trial complete")

			if t.Loss < res.BestLoss {
				hp, err := ToHyperparameters(t.Params)
				if err != nil {
					// 공간 밖 제안은 실패 trial로 이미 걸러졌어야 함
					return nil, fmt.Errorf("trial %d: %w", t.Number, err)
				}
				res.Best = hp
				res.BestLoss = t.Loss
				res.BestTrial = t.Number
			}
		}

		next += len(trials)
	}

	res.Duration = time.Since(start)

	if res.BestTrial < 0 {
		return nil, contracts.Errorf(contracts.KindOptimizationExhausted, "optimize",
			"all %d trials failed", len(res.Trials))
	}

	o.log.Info().
		Int("best_trial", res.BestTrial).
		Float64("best_loss", res.BestLoss).
		Float64("changepoint_prior_scale", res.Best.ChangepointPriorScale).
		Float64("seasonality_prior_scale", res.Best.SeasonalityPriorScale).
		Int("fourier_order", res.Best.FourierOrder).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("optimization completed")

	return res, nil
}

// evaluate runs one batch concurrently. A failing objective never cancels
// its siblings; only ctx cancellation aborts the run.
func (o *Optimizer) evaluate(ctx context.Context, first int, candidates []Assignment) ([]Trial, error) {
	trials := make([]Trial, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for i, cand := range candidates {
		g.Go(func() error {
			trials[i] = o.evaluateOne(gctx, first+i, cand)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimization interrupted: %w", err)
	}
	return trials, nil
}

func (o *Optimizer) evaluateOne(ctx context.Context, number int, params Assignment) (t Trial) {
	t = Trial{Number: number, Params: params, State: TrialFailed}

	defer func() {
		if r := recover(); r != nil {
			t.State = TrialFailed
			t.Err = fmt.Errorf("objective panicked: %v", r)
		}
	}()

	if !o.space.Contains(params) {
		t.Err = errors.New("candidate outside search space")
		return t
	}
	hp, err := ToHyperparameters(params)
	if err != nil {
		t.Err = err
		return t
	}

	loss, err := o.objective(ctx, hp)
	if err != nil {
		t.Err = err
		return t
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		t.Err = fmt.Errorf("non-finite loss %v", loss)
		return t
	}

	t.Loss = loss
	t.State = TrialComplete
	return t
}
