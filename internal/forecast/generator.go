package forecast

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/engine"
)

// =============================================================================
// Forecast Generator
// =============================================================================

// GenerateInput 예측 생성 입력
type GenerateInput struct {
	Series   []contracts.Observation
	Calendar contracts.EventCalendar
	Params   contracts.HyperparameterSet
}

// GenerateResult 예측 생성 결과
type GenerateResult struct {
	Decision     contracts.SignificanceDecision
	UsedHolidays bool
	Raw          []contracts.ForecastRecord // history + future, ProductID 없음
}

// Generator 예측 생성기
// ⭐ SSOT: 유의성 판정이 이벤트 회귀 변수를 on/off 한다 (가중치 없음)
type Generator struct {
	tester  *SignificanceTester
	gating  bool
	horizon int
	log     zerolog.Logger
}

// NewGenerator 새 생성기 생성
// gating=false이면 유의성 검정을 건너뛰고 이벤트 회귀 변수를 쓰지 않는다
func NewGenerator(tester *SignificanceTester, gating bool, log zerolog.Logger) *Generator {
	return &Generator{
		tester:  tester,
		gating:  gating,
		horizon: contracts.ForecastHorizonDays,
		log:     log.With().Str("component", "forecast.generator").Logger(),
	}
}

// Generate tests significance, configures and fits the engine and predicts
// the history plus the forecast horizon.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	if len(in.Series) == 0 {
		return nil, contracts.Errorf(contracts.KindMissingEventData, "generate", "revenue history is empty")
	}
	if err := in.Params.Validate(); err != nil {
		return nil, contracts.NewError(contracts.KindArtifactIO, "generate", err)
	}

	res := &GenerateResult{}

	// 1. 유의성 판정
	if g.gating {
		decision, err := g.tester.Test(ctx, in.Series, in.Calendar)
		if err != nil {
			return nil, err
		}
		res.Decision = decision
	}

	var holidays []engine.Holiday
	if res.Decision.Significant {
		holidays = EventHolidays(in.Calendar)
		res.UsedHolidays = true
	}

	// 2. 모델 구성
	model, err := NewModel(in.Params, holidays)
	if err != nil {
		return nil, contracts.NewError(contracts.KindStatisticalFit, "configure", err)
	}

	// 3. 적합 + 예측
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.Fit(ToPoints(in.Series)); err != nil {
		g.log.Error().Err(err).Int("observations", len(in.Series)).Msg("model fit failed")
		return nil, contracts.NewError(contracts.KindStatisticalFit, "fit", err)
	}

	preds, err := model.Predict(model.MakeFutureDates(g.horizon))
	if err != nil {
		return nil, contracts.NewError(contracts.KindStatisticalFit, "predict", err)
	}

	res.Raw = make([]contracts.ForecastRecord, len(preds))
	for i, p := range preds {
		res.Raw[i] = contracts.ForecastRecord{Date: p.DS, Predicted: p.Yhat}
	}

	g.log.Info().
		Bool("gating", g.gating).
		Bool("significant", res.Decision.Significant).
		Bool("holidays", res.UsedHolidays).
		Float64("changepoint_prior_scale", in.Params.ChangepointPriorScale).
		Float64("seasonality_prior_scale", in.Params.SeasonalityPriorScale).
		Int("fourier_order", in.Params.FourierOrder).
		Int("history", len(in.Series)).
		Int("records", len(res.Raw)).
		Msg("forecast generated")

	return res, nil
}
