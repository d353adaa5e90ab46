// Package stats provides the small amount of regression machinery the
// pipeline needs: ordinary least squares with per-coefficient t-tests.
package stats

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrRankDeficient 설계 행렬이 full column rank가 아님
var ErrRankDeficient = errors.New("design matrix is rank deficient")

// ErrDegenerateFit 잔차 자유도/분산이 없어 검정 불가
var ErrDegenerateFit = errors.New("degenerate fit")

// OLSResult OLS 적합 결과
type OLSResult struct {
	Names    []string
	Coef     []float64
	StdErr   []float64
	TValues  []float64
	PValues  []float64
	RSS      float64
	DFResid  int
	NObs     int
	RSquared float64 // uncentered (절편 없는 모형)
}

// exactFitTolerance RSS/Σy² 이하이면 잔차 분산 0으로 본다
const exactFitTolerance = 1e-12

// FitOLS fits y = Xβ + ε by least squares. X must not contain an implicit
// intercept; callers add one as a column if they want it.
func FitOLS(x *mat.Dense, y []float64, names []string) (*OLSResult, error) {
	n, k := x.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("row mismatch: X has %d rows, y has %d", n, len(y))
	}
	if len(names) != k {
		return nil, fmt.Errorf("expected %d coefficient names, got %d", k, len(names))
	}

	dfResid := n - k
	if dfResid <= 0 {
		return nil, fmt.Errorf("%w: %d observations for %d coefficients", ErrDegenerateFit, n, k)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrRankDeficient
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var xty mat.VecDense
	xty.MulVec(x.T(), yv)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)

	var rss, tss float64
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		rss += r * r
		tss += y[i] * y[i]
	}

	// 정확히 적합된 경우 반올림 잔차만 남으므로 상대 허용오차로 판정
	if math.IsNaN(rss) || rss <= exactFitTolerance*tss {
		return nil, fmt.Errorf("%w: zero residual variance", ErrDegenerateFit)
	}
	sigma2 := rss / float64(dfResid)

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}

	res := &OLSResult{
		Names:   append([]string(nil), names...),
		Coef:    make([]float64, k),
		StdErr:  make([]float64, k),
		TValues: make([]float64, k),
		PValues: make([]float64, k),
		RSS:     rss,
		DFResid: dfResid,
		NObs:    n,
	}
	if tss > 0 {
		res.RSquared = 1 - rss/tss
	}

	for j := 0; j < k; j++ {
		b := beta.AtVec(j)
		se := math.Sqrt(sigma2 * inv.At(j, j))
		t := b / se
		res.Coef[j] = b
		res.StdErr[j] = se
		res.TValues[j] = t
		res.PValues[j] = 2 * tdist.Survival(math.Abs(t))
	}

	return res, nil
}

// PValue 이름으로 p-value 조회
func (r *OLSResult) PValue(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.PValues[i], true
		}
	}
	return 0, false
}

// Coefficient 이름으로 계수 조회
func (r *OLSResult) Coefficient(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Coef[i], true
		}
	}
	return 0, false
}

// Summary renders a compact coefficient table for logs
func (r *OLSResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "OLS n=%d df_resid=%d rss=%.4f r2(uncentered)=%.4f\n", r.NObs, r.DFResid, r.RSS, r.RSquared)
	fmt.Fprintf(&b, "%-14s %12s %12s %10s %10s\n", "term", "coef", "std_err", "t", "P>|t|")
	for i, name := range r.Names {
		fmt.Fprintf(&b, "%-14s %12.4f %12.4f %10.3f %10.4f\n",
			name, r.Coef[i], r.StdErr[i], r.TValues[i], r.PValues[i])
	}
	return b.String()
}
