package forecast

import (
	"time"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/engine"
)

// NewModel 하이퍼파라미터로 엔진 모델 구성
// ⭐ SSOT: 옵티마이저와 생성기가 동일한 모델 구성을 사용
// quarterly 시즌성(91.25일)은 항상 추가, fourier order는 튜닝된 값
func NewModel(hp contracts.HyperparameterSet, holidays []engine.Holiday) (*engine.Model, error) {
	m := engine.New(engine.Options{
		ChangepointPriorScale: hp.ChangepointPriorScale,
		SeasonalityPriorScale: hp.SeasonalityPriorScale,
		Holidays:              holidays,
	})
	if err := m.AddSeasonality(contracts.QuarterlySeasonality, contracts.QuarterlyPeriodDays, hp.FourierOrder); err != nil {
		return nil, err
	}
	return m, nil
}

// EventHolidays 이벤트 캘린더 → 휴일 회귀 변수 (당일 + 다음날)
func EventHolidays(cal contracts.EventCalendar) []engine.Holiday {
	holidays := make([]engine.Holiday, 0, len(cal.Dates))
	for _, d := range cal.Dates {
		holidays = append(holidays, engine.Holiday{
			Name:        contracts.EventHolidayName,
			Date:        d,
			LowerWindow: 0,
			UpperWindow: 1,
		})
	}
	return holidays
}

// ToPoints 관측치 → 엔진 입력
func ToPoints(obs []contracts.Observation) []engine.Point {
	pts := make([]engine.Point, len(obs))
	for i, o := range obs {
		pts[i] = engine.Point{DS: o.Date, Y: o.Revenue}
	}
	return pts
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
