package forecast

import (
	"context"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/stats"
)

// =============================================================================
// Event Significance Tester
// =============================================================================

// 회귀 항 이름
const (
	termPreEvent    = "PreEvent"
	termDuringEvent = "DuringEvent"
	termPostEvent   = "PostEvent"
)

// SignificanceTester 이벤트 유의성 검정기
// ⭐ SSOT: 이벤트 회귀 변수 사용 여부를 결정하는 유일한 판정
type SignificanceTester struct {
	alpha float64
	log   zerolog.Logger
}

// NewSignificanceTester 새 검정기 생성
func NewSignificanceTester(log zerolog.Logger) *SignificanceTester {
	return &SignificanceTester{
		alpha: contracts.SignificanceAlpha,
		log:   log.With().Str("component", "forecast.significance").Logger(),
	}
}

// Test regresses revenue on three mutually exclusive indicators (before,
// on, after the earliest event date) with no intercept and reports whether
// the on-date coefficient has a two-tailed p-value below alpha.
func (s *SignificanceTester) Test(ctx context.Context, series []contracts.Observation, cal contracts.EventCalendar) (contracts.SignificanceDecision, error) {
	eventDate, ok := cal.Earliest()
	if !ok {
		return contracts.SignificanceDecision{}, contracts.Errorf(contracts.KindMissingEventData,
			"significance", "event calendar is empty")
	}
	if len(series) == 0 {
		return contracts.SignificanceDecision{}, contracts.Errorf(contracts.KindMissingEventData,
			"significance", "revenue series is empty")
	}
	eventDate = dateOnly(eventDate)

	// 3-way 분할 (절편 없음)
	x := mat.NewDense(len(series), 3, nil)
	y := make([]float64, len(series))
	var nPre, nOn, nPost int
	for i, o := range series {
		d := dateOnly(o.Date)
		switch {
		case d.Before(eventDate):
			x.Set(i, 0, 1)
			nPre++
		case d.Equal(eventDate):
			x.Set(i, 1, 1)
			nOn++
		default:
			x.Set(i, 2, 1)
			nPost++
		}
		y[i] = o.Revenue
	}

	log := s.log.With().
		Str("event_date", eventDate.Format(contracts.DateLayout)).
		Int("n_pre", nPre).
		Int("n_on", nOn).
		Int("n_post", nPost).
		Logger()

	res, err := stats.FitOLS(x, y, []string{termPreEvent, termDuringEvent, termPostEvent})
	if err != nil {
		// 빈 그룹(rank deficient), 잔차 자유도 0, 잔차 분산 0 모두 fit 실패
		log.Error().Err(err).Msg("significance regression failed")
		return contracts.SignificanceDecision{}, contracts.NewError(contracts.KindStatisticalFit, "significance", err)
	}

	log.Debug().Msg("\n" + res.Summary())

	coef, _ := res.Coefficient(termDuringEvent)
	p, _ := res.PValue(termDuringEvent)

	decision := contracts.SignificanceDecision{
		EventDate:   eventDate,
		Coefficient: coef,
		PValue:      p,
		Significant: p < s.alpha,
	}

	log.Info().
		Float64("coefficient", coef).
		Float64("p_value", p).
		Bool("significant", decision.Significant).
		Msg("event significance tested")

	return decision, nil
}
