// Package optimize searches the hyperparameter space of the forecasting
// engine. A Strategy proposes candidates, the Optimizer evaluates them
// against an Objective and keeps the best trial.
package optimize

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// 파라미터 이름 (아티팩트 컬럼명과 동일)
const (
	ParamChangepointPriorScale = "changepoint_prior_scale"
	ParamSeasonalityPriorScale = "seasonality_prior_scale"
	ParamFourierOrder          = "fourier_order"
)

// Dimension 탐색 공간의 한 축
// Choices가 있으면 범주형, 없으면 [Low, High] 연속형 (Log이면 로그 균등)
type Dimension struct {
	Name    string
	Low     float64
	High    float64
	Log     bool
	Choices []float64
}

// IsCategorical 범주형 여부
func (d Dimension) IsCategorical() bool {
	return len(d.Choices) > 0
}

// Space 독립 차원들의 집합
type Space []Dimension

// Assignment 파라미터 이름 → 값
// 범주형도 인덱스가 아니라 실제 선택지 값을 담는다
type Assignment map[string]float64

// DefaultSpace 기본 탐색 공간
// ⭐ SSOT: prior scale은 [e^-5, e^0] 로그 균등, fourier order는 {5, 10, 15}
func DefaultSpace() Space {
	choices := make([]float64, len(contracts.FourierOrderChoices))
	for i, c := range contracts.FourierOrderChoices {
		choices[i] = float64(c)
	}
	return Space{
		{Name: ParamChangepointPriorScale, Low: math.Exp(-5), High: math.Exp(0), Log: true},
		{Name: ParamSeasonalityPriorScale, Low: math.Exp(-5), High: math.Exp(0), Log: true},
		{Name: ParamFourierOrder, Choices: choices},
	}
}

// Validate checks bounds and choices
func (s Space) Validate() error {
	seen := make(map[string]bool)
	for _, d := range s {
		if d.Name == "" {
			return fmt.Errorf("dimension without name")
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true

		if d.IsCategorical() {
			continue
		}
		if !(d.Low < d.High) {
			return fmt.Errorf("dimension %q: low %v must be below high %v", d.Name, d.Low, d.High)
		}
		if d.Log && d.Low <= 0 {
			return fmt.Errorf("dimension %q: log scale needs a positive low bound", d.Name)
		}
	}
	return nil
}

// Sample draws one assignment uniformly from the prior
func (s Space) Sample(rng *rand.Rand) Assignment {
	a := make(Assignment, len(s))
	for _, d := range s {
		if d.IsCategorical() {
			a[d.Name] = d.Choices[rng.IntN(len(d.Choices))]
			continue
		}
		lo, hi := d.internal(d.Low), d.internal(d.High)
		a[d.Name] = d.external(lo + rng.Float64()*(hi-lo))
	}
	return a
}

// Contains reports whether every dimension has an in-range value
func (s Space) Contains(a Assignment) bool {
	for _, d := range s {
		v, ok := a[d.Name]
		if !ok {
			return false
		}
		if d.IsCategorical() {
			if d.choiceIndex(v) < 0 {
				return false
			}
			continue
		}
		if v < d.Low || v > d.High {
			return false
		}
	}
	return true
}

// internal/external 연속형 차원의 탐색 좌표 변환 (로그 스케일)
func (d Dimension) internal(v float64) float64 {
	if d.Log {
		return math.Log(v)
	}
	return v
}

func (d Dimension) external(u float64) float64 {
	if d.Log {
		v := math.Exp(u)
		// exp(log(x))의 반올림 오차로 경계를 벗어나지 않도록
		return math.Min(math.Max(v, d.Low), d.High)
	}
	return u
}

func (d Dimension) choiceIndex(v float64) int {
	for i, c := range d.Choices {
		if c == v {
			return i
		}
	}
	return -1
}

// ToHyperparameters converts an assignment from DefaultSpace into the
// persisted hyperparameter set.
func ToHyperparameters(a Assignment) (contracts.HyperparameterSet, error) {
	cps, ok1 := a[ParamChangepointPriorScale]
	sps, ok2 := a[ParamSeasonalityPriorScale]
	fo, ok3 := a[ParamFourierOrder]
	if !ok1 || !ok2 || !ok3 {
		return contracts.HyperparameterSet{}, fmt.Errorf("incomplete assignment %v", a)
	}
	if fo != math.Trunc(fo) {
		return contracts.HyperparameterSet{}, fmt.Errorf("fourier_order %v is not an integer", fo)
	}

	hp := contracts.HyperparameterSet{
		ChangepointPriorScale: cps,
		SeasonalityPriorScale: sps,
		FourierOrder:          int(fo),
	}
	if err := hp.Validate(); err != nil {
		return contracts.HyperparameterSet{}, err
	}
	return hp, nil
}
