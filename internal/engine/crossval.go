package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInsufficientHistory 교차검증 윈도우를 만들 수 없음
var ErrInsufficientHistory = errors.New("insufficient history for cross-validation")

// Predictor 적합된 모델의 예측 인터페이스
type Predictor interface {
	Predict(dates []time.Time) ([]Forecast, error)
}

// FitFunc fits a fresh model on the training slice
type FitFunc func(train []Point) (Predictor, error)

// CVWindow 교차검증 윈도우 (일 단위)
type CVWindow struct {
	InitialDays int
	PeriodDays  int
	HorizonDays int
}

// CVRow 교차검증 결과 한 행
type CVRow struct {
	DS     time.Time
	Y      float64
	Yhat   float64
	Cutoff time.Time
}

// HorizonMetric horizon(일)별 MAPE (비율, ×100 전)
type HorizonMetric struct {
	HorizonDays int
	MAPE        float64
	N           int
}

// Cutoffs computes rolling-origin cutoffs: the last cutoff leaves exactly
// one horizon of data, earlier ones step back by PeriodDays while at least
// InitialDays of training data remain.
func Cutoffs(history []Point, w CVWindow) ([]time.Time, error) {
	if len(history) == 0 {
		return nil, ErrInsufficientHistory
	}
	if w.InitialDays <= 0 || w.PeriodDays <= 0 || w.HorizonDays <= 0 {
		return nil, fmt.Errorf("invalid cross-validation window %+v", w)
	}

	first := history[0].DS
	last := history[len(history)-1].DS
	minCutoff := first.AddDate(0, 0, w.InitialDays)

	cutoff := last.AddDate(0, 0, -w.HorizonDays)
	if cutoff.Before(minCutoff) {
		return nil, fmt.Errorf("%w: need %d days, have %.0f",
			ErrInsufficientHistory, w.InitialDays+w.HorizonDays, last.Sub(first).Hours()/24)
	}

	var cutoffs []time.Time
	for !cutoff.Before(minCutoff) {
		cutoffs = append(cutoffs, cutoff)
		cutoff = cutoff.AddDate(0, 0, -w.PeriodDays)
	}

	sort.Slice(cutoffs, func(i, j int) bool { return cutoffs[i].Before(cutoffs[j]) })
	return cutoffs, nil
}

// CrossValidate runs rolling-origin cross-validation. Each fold fits a new
// model on points up to and including the cutoff and predicts the points in
// (cutoff, cutoff+horizon].
func CrossValidate(ctx context.Context, history []Point, w CVWindow, fit FitFunc) ([]CVRow, error) {
	cutoffs, err := Cutoffs(history, w)
	if err != nil {
		return nil, err
	}

	var rows []CVRow
	for _, cutoff := range cutoffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := cutoff.AddDate(0, 0, w.HorizonDays)
		var train []Point
		var test []Point
		for _, p := range history {
			switch {
			case !p.DS.After(cutoff):
				train = append(train, p)
			case !p.DS.After(end):
				test = append(test, p)
			}
		}
		if len(test) == 0 {
			continue
		}

		model, err := fit(train)
		if err != nil {
			return nil, fmt.Errorf("fit fold %s: %w", cutoff.Format("2006-01-02"), err)
		}

		dates := make([]time.Time, len(test))
		for i, p := range test {
			dates[i] = p.DS
		}
		preds, err := model.Predict(dates)
		if err != nil {
			return nil, fmt.Errorf("predict fold %s: %w", cutoff.Format("2006-01-02"), err)
		}

		for i, p := range test {
			rows = append(rows, CVRow{DS: p.DS, Y: p.Y, Yhat: preds[i].Yhat, Cutoff: cutoff})
		}
	}

	if len(rows) == 0 {
		return nil, ErrInsufficientHistory
	}
	return rows, nil
}

// PerformanceMetrics groups cross-validation rows by horizon and computes
// MAPE per horizon. Rows with a zero actual are excluded; horizons without
// any usable row are omitted.
func PerformanceMetrics(rows []CVRow) []HorizonMetric {
	type acc struct {
		sum float64
		n   int
	}
	byHorizon := make(map[int]*acc)
	for _, r := range rows {
		if r.Y == 0 || math.IsNaN(r.Y) || math.IsNaN(r.Yhat) {
			continue
		}
		h := int(math.Round(r.DS.Sub(r.Cutoff).Hours() / 24))
		a, ok := byHorizon[h]
		if !ok {
			a = &acc{}
			byHorizon[h] = a
		}
		a.sum += math.Abs(r.Y-r.Yhat) / math.Abs(r.Y)
		a.n++
	}

	metrics := make([]HorizonMetric, 0, len(byHorizon))
	for h, a := range byHorizon {
		metrics = append(metrics, HorizonMetric{HorizonDays: h, MAPE: a.sum / float64(a.n), N: a.n})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].HorizonDays < metrics[j].HorizonDays })
	return metrics
}

// MeanMAPE averages MAPE over horizons
func MeanMAPE(metrics []HorizonMetric) (float64, error) {
	if len(metrics) == 0 {
		return 0, errors.New("no horizon metrics")
	}
	var sum float64
	for _, m := range metrics {
		sum += m.MAPE
	}
	return sum / float64(len(metrics)), nil
}
