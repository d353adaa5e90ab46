package forecast

import (
	"errors"
	"math"

	"github.com/rs/zerolog"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/storage"
)

// =============================================================================
// Forecast Validator
// =============================================================================

// ComputeMAPE returns the mean absolute percentage error (in percent) over
// index-aligned pairs whose actual is non-zero. NaN on either side skips the
// pair. No usable pair yields NoComparableData.
func ComputeMAPE(actual, forecast []float64) (float64, error) {
	n := len(actual)
	if len(forecast) < n {
		n = len(forecast)
	}

	var sum float64
	var count int
	for i := 0; i < n; i++ {
		a, f := actual[i], forecast[i]
		if a == 0 || math.IsNaN(a) || math.IsNaN(f) {
			continue
		}
		sum += math.Abs(f-a) / math.Abs(a)
		count++
	}
	if count == 0 {
		return 0, contracts.ErrNoComparableData
	}
	return sum / float64(count) * 100, nil
}

// Validator 예측 정확도 검증기
// ⭐ SSOT: fcst_<period> ↔ actual_<period> 컬럼 짝짓기 규칙
type Validator struct {
	log zerolog.Logger
}

// NewValidator 새 검증기 생성
func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{
		log: log.With().Str("component", "forecast.validator").Logger(),
	}
}

// Score computes MAPE for every fcst_<period> column of the forecast table
// against actual_<period> in the actuals table. Rows are paired by position;
// missing cells (blank, NA) are skipped and any other unparseable cell is an
// ArtifactIOError. Every period without comparable
// data is reported together in one joined error.
func (v *Validator) Score(fcst, actual *storage.Table) (contracts.AccuracyScores, error) {
	periods := fcst.ColumnsWithPrefix(storage.ForecastPrefix)
	if len(periods) == 0 {
		return nil, contracts.Errorf(contracts.KindArtifactIO, "validate",
			"forecast table has no %s* columns", storage.ForecastPrefix)
	}

	scores := make(contracts.AccuracyScores, len(periods))
	var errs []error

	for _, fcstCol := range periods {
		actCol := storage.ActualColumnFor(fcstCol)
		ai := actual.Column(actCol)
		if ai < 0 {
			return nil, contracts.Errorf(contracts.KindArtifactIO, "validate",
				"actuals table has no %s column for %s", actCol, fcstCol)
		}

		actVals, err := columnValues(actual, ai, actCol)
		if err != nil {
			return nil, err
		}
		fcstVals, err := columnValues(fcst, fcst.Column(fcstCol), fcstCol)
		if err != nil {
			return nil, err
		}

		mape, err := ComputeMAPE(actVals, fcstVals)
		if err != nil {
			v.log.Error().Str("period", fcstCol).Msg("no comparable data")
			errs = append(errs, contracts.Errorf(contracts.KindNoComparableData, fcstCol,
				"no non-zero actuals paired with forecasts"))
			continue
		}

		scores[fcstCol] = mape
		v.log.Info().Str("period", fcstCol).Msgf("MAPE for %s: %.2f%%", fcstCol, mape)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return scores, nil
}

// columnValues 컬럼 셀 → float (결측은 NaN, 그 외 파싱 불가는 오류)
func columnValues(t *storage.Table, col int, name string) ([]float64, error) {
	vals := make([]float64, len(t.Rows))
	for i := range t.Rows {
		v, err := storage.ParseOptionalFloat(t.Cell(i, col))
		if err != nil {
			return nil, contracts.Errorf(contracts.KindArtifactIO, "validate",
				"%s row %d: %v", name, i+2, err)
		}
		vals[i] = v
	}
	return vals, nil
}
