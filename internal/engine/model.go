// Package engine is the seasonal-trend forecasting engine the pipeline fits
// and cross-validates. The model is additive: a piecewise-linear trend with
// automatically placed changepoints, Fourier seasonalities, and holiday
// indicator regressors. Coefficients are the MAP estimate under Gaussian
// priors whose scales come from Options.
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted Predict 호출 전 Fit 필요
var ErrNotFitted = errors.New("model is not fitted")

// Point 학습 데이터 한 점 (ds, y)
type Point struct {
	DS time.Time
	Y  float64
}

// Forecast 예측 결과 한 점 (ds, yhat)
type Forecast struct {
	DS   time.Time
	Yhat float64
}

// Holiday 휴일/이벤트 회귀 변수 정의
// LowerWindow(<=0)/UpperWindow(>=0)는 이벤트 당일 기준 포함 범위 (일)
type Holiday struct {
	Name        string
	Date        time.Time
	LowerWindow int
	UpperWindow int
}

// Seasonality Fourier 시즌성 정의
type Seasonality struct {
	Name         string
	Period       float64 // days
	FourierOrder int
	PriorScale   float64
}

// Options 모델 설정
type Options struct {
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
	HolidaysPriorScale    float64
	NChangepoints         int
	ChangepointRange      float64
	Holidays              []Holiday
}

// DefaultOptions 기본 설정
func DefaultOptions() Options {
	return Options{
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
		HolidaysPriorScale:    10,
		NChangepoints:         25,
		ChangepointRange:      0.8,
	}
}

// Model 가법 시즌-추세 모델
type Model struct {
	opts          Options
	seasonalities []Seasonality

	// 적합 후 상태
	fitted       bool
	history      []Point
	start        time.Time
	spanDays     float64
	yScale       float64
	changepoints []float64 // scaled t
	active       []Seasonality
	holidayCols  []holidayColumn
	beta         []float64
}

type holidayColumn struct {
	name   string
	offset int
	dates  map[string]struct{}
}

// New creates a model. Zero-valued option fields fall back to DefaultOptions.
func New(opts Options) *Model {
	def := DefaultOptions()
	if opts.ChangepointPriorScale <= 0 {
		opts.ChangepointPriorScale = def.ChangepointPriorScale
	}
	if opts.SeasonalityPriorScale <= 0 {
		opts.SeasonalityPriorScale = def.SeasonalityPriorScale
	}
	if opts.HolidaysPriorScale <= 0 {
		opts.HolidaysPriorScale = def.HolidaysPriorScale
	}
	if opts.NChangepoints <= 0 {
		opts.NChangepoints = def.NChangepoints
	}
	if opts.ChangepointRange <= 0 || opts.ChangepointRange > 1 {
		opts.ChangepointRange = def.ChangepointRange
	}
	return &Model{opts: opts}
}

// AddSeasonality registers a custom seasonality. Must be called before Fit.
func (m *Model) AddSeasonality(name string, period float64, fourierOrder int) error {
	if m.fitted {
		return errors.New("seasonality must be added before fitting")
	}
	if period <= 0 || fourierOrder <= 0 {
		return fmt.Errorf("invalid seasonality %q: period=%v order=%d", name, period, fourierOrder)
	}
	for _, s := range m.seasonalities {
		if s.Name == name {
			return fmt.Errorf("seasonality %q already exists", name)
		}
	}
	m.seasonalities = append(m.seasonalities, Seasonality{
		Name:         name,
		Period:       period,
		FourierOrder: fourierOrder,
		PriorScale:   m.opts.SeasonalityPriorScale,
	})
	return nil
}

// Fit estimates the model on history (sorted by date, one point per date)
func (m *Model) Fit(history []Point) error {
	if m.fitted {
		return errors.New("model already fitted; create a new model")
	}
	if len(history) < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if !history[i].DS.After(history[i-1].DS) {
			return fmt.Errorf("history must be strictly increasing by date (index %d)", i)
		}
	}
	for i, p := range history {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("non-finite y at index %d", i)
		}
	}

	m.history = append([]Point(nil), history...)
	m.start = history[0].DS
	m.spanDays = history[len(history)-1].DS.Sub(m.start).Hours() / 24

	m.yScale = 0
	for _, p := range history {
		m.yScale = math.Max(m.yScale, math.Abs(p.Y))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}

	m.placeChangepoints()
	m.selectSeasonalities()
	m.buildHolidayColumns()

	dates := make([]time.Time, len(history))
	y := make([]float64, len(history))
	for i, p := range history {
		dates[i] = p.DS
		y[i] = p.Y / m.yScale
	}

	x := m.design(dates)
	prior := m.priorScales()

	// 1차: 약한 정규화로 잔차 분산 추정
	weak := make([]float64, len(prior))
	for j := range weak {
		weak[j] = 1e-3
	}
	weak[0], weak[1] = 1e-8, 1e-8
	beta, err := ridge(x, y, weak)
	if err != nil {
		return err
	}
	sigma2 := residualVariance(x, y, beta)

	// 2차: MAP (penalty = sigma^2 / prior^2)
	lambda := make([]float64, len(prior))
	for j, s := range prior {
		if s == 0 {
			lambda[j] = 1e-8
			continue
		}
		lambda[j] = math.Max(sigma2, 1e-8) / (s * s)
	}
	beta, err = ridge(x, y, lambda)
	if err != nil {
		return err
	}

	m.beta = beta
	m.fitted = true
	return nil
}

// MakeFutureDates returns history dates followed by `periods` daily dates
// after the last history date.
func (m *Model) MakeFutureDates(periods int) []time.Time {
	dates := make([]time.Time, 0, len(m.history)+periods)
	for _, p := range m.history {
		dates = append(dates, p.DS)
	}
	if len(m.history) == 0 {
		return dates
	}
	last := m.history[len(m.history)-1].DS
	for i := 1; i <= periods; i++ {
		dates = append(dates, last.AddDate(0, 0, i))
	}
	return dates
}

// Predict returns yhat for each date
func (m *Model) Predict(dates []time.Time) ([]Forecast, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	if len(dates) == 0 {
		return nil, nil
	}

	x := m.design(dates)
	var yhat mat.VecDense
	yhat.MulVec(x, mat.NewVecDense(len(m.beta), m.beta))

	out := make([]Forecast, len(dates))
	for i, d := range dates {
		out[i] = Forecast{DS: d, Yhat: yhat.AtVec(i) * m.yScale}
	}
	return out, nil
}

// Seasonalities 적합에 사용된 시즌성 목록
func (m *Model) Seasonalities() []Seasonality {
	return append([]Seasonality(nil), m.active...)
}

func (m *Model) scaledT(d time.Time) float64 {
	if m.spanDays == 0 {
		return 0
	}
	return d.Sub(m.start).Hours() / 24 / m.spanDays
}

func (m *Model) placeChangepoints() {
	m.changepoints = nil
	histSize := int(math.Floor(float64(len(m.history)) * m.opts.ChangepointRange))
	n := m.opts.NChangepoints
	if n > histSize-1 {
		n = histSize - 1
	}
	if n <= 0 {
		return
	}
	for i := 1; i <= n; i++ {
		idx := int(math.Round(float64(i) * float64(histSize-1) / float64(n)))
		m.changepoints = append(m.changepoints, m.scaledT(m.history[idx].DS))
	}
}

func (m *Model) selectSeasonalities() {
	m.active = nil
	if m.spanDays >= 730 {
		m.active = append(m.active, Seasonality{Name: "yearly", Period: 365.25, FourierOrder: 10, PriorScale: m.opts.SeasonalityPriorScale})
	}
	if m.spanDays >= 14 && minSpacingDays(m.history) < 7 {
		m.active = append(m.active, Seasonality{Name: "weekly", Period: 7, FourierOrder: 3, PriorScale: m.opts.SeasonalityPriorScale})
	}
	m.active = append(m.active, m.seasonalities...)
}

func (m *Model) buildHolidayColumns() {
	m.holidayCols = nil
	index := make(map[string]int)
	for _, h := range m.opts.Holidays {
		for off := h.LowerWindow; off <= h.UpperWindow; off++ {
			key := fmt.Sprintf("%s_%+d", h.Name, off)
			i, ok := index[key]
			if !ok {
				i = len(m.holidayCols)
				index[key] = i
				m.holidayCols = append(m.holidayCols, holidayColumn{name: h.Name, offset: off, dates: map[string]struct{}{}})
			}
			m.holidayCols[i].dates[h.Date.AddDate(0, 0, off).Format("2006-01-02")] = struct{}{}
		}
	}
}

func (m *Model) design(dates []time.Time) *mat.Dense {
	nSeason := 0
	for _, s := range m.active {
		nSeason += 2 * s.FourierOrder
	}
	k := 2 + len(m.changepoints) + nSeason + len(m.holidayCols)
	x := mat.NewDense(len(dates), k, nil)

	for i, d := range dates {
		t := m.scaledT(d)
		col := 0
		x.Set(i, col, 1)
		col++
		x.Set(i, col, t)
		col++
		for _, cp := range m.changepoints {
			x.Set(i, col, math.Max(0, t-cp))
			col++
		}
		epochDays := float64(d.Unix()) / 86400
		for _, s := range m.active {
			for n := 1; n <= s.FourierOrder; n++ {
				arg := 2 * math.Pi * float64(n) * epochDays / s.Period
				x.Set(i, col, math.Sin(arg))
				x.Set(i, col+1, math.Cos(arg))
				col += 2
			}
		}
		key := d.Format("2006-01-02")
		for _, h := range m.holidayCols {
			if _, ok := h.dates[key]; ok {
				x.Set(i, col, 1)
			}
			col++
		}
	}
	return x
}

// priorScales 열 순서와 같은 prior scale (0 = 사실상 무제약)
func (m *Model) priorScales() []float64 {
	scales := []float64{0, 0}
	for range m.changepoints {
		scales = append(scales, m.opts.ChangepointPriorScale)
	}
	for _, s := range m.active {
		for n := 0; n < 2*s.FourierOrder; n++ {
			scales = append(scales, s.PriorScale)
		}
	}
	for range m.holidayCols {
		scales = append(scales, m.opts.HolidaysPriorScale)
	}
	return scales
}

func ridge(x *mat.Dense, y []float64, lambda []float64) ([]float64, error) {
	_, k := x.Dims()

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	a := mat.NewSymDense(k, nil)
	a.CopySym(&xtx)
	for j := 0; j < k; j++ {
		a.SetSym(j, j, a.At(j, j)+lambda[j])
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(len(y), append([]float64(nil), y...)))

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, errors.New("normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}
	return append([]float64(nil), beta.RawVector().Data...), nil
}

func residualVariance(x *mat.Dense, y []float64, beta []float64) float64 {
	var fitted mat.VecDense
	fitted.MulVec(x, mat.NewVecDense(len(beta), beta))
	var rss float64
	for i := range y {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
	}
	return rss / float64(len(y))
}

func minSpacingDays(points []Point) float64 {
	smallest := math.Inf(1)
	for i := 1; i < len(points); i++ {
		d := points[i].DS.Sub(points[i-1].DS).Hours() / 24
		if d < smallest {
			smallest = d
		}
	}
	return smallest
}
