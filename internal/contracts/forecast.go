package contracts

import (
	"sort"
	"time"
)

// DateLayout 모든 아티팩트에서 사용하는 날짜 포맷
const DateLayout = "2006-01-02"

// Observation 일별 광고 매출 관측치
type Observation struct {
	Date    time.Time `json:"date"`
	Revenue float64   `json:"revenue"`
}

// SortObservations 날짜 오름차순 정렬 (원본 슬라이스 변경)
func SortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date)
	})
}

// EventCalendar 프로모션 이벤트 날짜 목록 (예: Prime Day)
type EventCalendar struct {
	Dates []time.Time `json:"dates"`
}

// Earliest 가장 이른 이벤트 날짜. 비어 있으면 false
func (c EventCalendar) Earliest() (time.Time, bool) {
	if len(c.Dates) == 0 {
		return time.Time{}, false
	}
	earliest := c.Dates[0]
	for _, d := range c.Dates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, true
}

// IsEmpty 이벤트가 하나도 없는지 여부
func (c EventCalendar) IsEmpty() bool {
	return len(c.Dates) == 0
}

// SignificanceDecision 이벤트 유의성 판정 결과
// 파이프라인 실행당 한 번 계산되고 이후 변경되지 않음
type SignificanceDecision struct {
	EventDate   time.Time `json:"event_date"`
	Coefficient float64   `json:"coefficient"`
	PValue      float64   `json:"p_value"`
	Significant bool      `json:"significant"`
}

// ForecastRecord 예측 레코드 (ProductID는 선택)
type ForecastRecord struct {
	Date      time.Time `json:"ds"`
	Predicted float64   `json:"yhat"`
	ProductID string    `json:"product_id,omitempty"`
}

// AccuracyScores 예측 기간 컬럼 → MAPE(%) 매핑
type AccuracyScores map[string]float64

// Periods 기간 식별자를 정렬해서 반환
func (s AccuracyScores) Periods() []string {
	periods := make([]string, 0, len(s))
	for p := range s {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods
}

// RevenueFloor 최종 예측값 하한
const RevenueFloor = 1.1

// SignificanceAlpha 유의수준
const SignificanceAlpha = 0.05
