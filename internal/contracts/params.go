package contracts

import (
	"fmt"
	"math"
)

// FourierOrderChoices quarterly 시즌성 차수 후보
var FourierOrderChoices = []int{5, 10, 15}

// HyperparameterSet 최적화된 하이퍼파라미터
// 옵티마이저가 한 번 생성/저장하고, 이후 소비자는 읽기만 한다
type HyperparameterSet struct {
	ChangepointPriorScale float64 `json:"changepoint_prior_scale"`
	SeasonalityPriorScale float64 `json:"seasonality_prior_scale"`
	FourierOrder          int     `json:"fourier_order"` // 인덱스가 아닌 실제 값
}

// Validate checks that the set is usable by the engine.
// FourierOrder must be one of FourierOrderChoices, never an index.
func (h HyperparameterSet) Validate() error {
	if !positiveFinite(h.ChangepointPriorScale) {
		return fmt.Errorf("changepoint_prior_scale must be positive and finite, got %v", h.ChangepointPriorScale)
	}
	if !positiveFinite(h.SeasonalityPriorScale) {
		return fmt.Errorf("seasonality_prior_scale must be positive and finite, got %v", h.SeasonalityPriorScale)
	}
	for _, c := range FourierOrderChoices {
		if h.FourierOrder == c {
			return nil
		}
	}
	return fmt.Errorf("fourier_order %d is not one of %v", h.FourierOrder, FourierOrderChoices)
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// 모델 구성 상수 (옵티마이저와 생성기가 동일하게 사용)
const (
	QuarterlySeasonality = "quarterly"
	QuarterlyPeriodDays  = 91.25
	ForecastHorizonDays  = 180

	CVInitialDays = 730
	CVPeriodDays  = 180
	CVHorizonDays = 365
)

// EventHolidayName 이벤트 회귀 변수 이름
const EventHolidayName = "PrimeDay"
