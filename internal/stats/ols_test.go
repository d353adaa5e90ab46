package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitOLS_GroupMeans(t *testing.T) {
	// 절편 없는 3-그룹 더미 모형의 계수 = 그룹 평균
	y := []float64{1, 2, 3, 10, 4, 5, 6}
	x := mat.NewDense(7, 3, []float64{
		1, 0, 0,
		1, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
	})

	res, err := FitOLS(x, y, []string{"pre", "during", "post"})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Coef[0], 1e-9)
	assert.InDelta(t, 10.0, res.Coef[1], 1e-9)
	assert.InDelta(t, 5.0, res.Coef[2], 1e-9)
	assert.Equal(t, 4, res.DFResid)

	// RSS = (1+0+1) + 0 + (1+0+1) = 4, sigma2 = 1
	assert.InDelta(t, 4.0, res.RSS, 1e-9)
	// SE(during) = sqrt(1 / 1)
	assert.InDelta(t, 1.0, res.StdErr[1], 1e-9)
	assert.InDelta(t, 10.0, res.TValues[1], 1e-9)

	p, ok := res.PValue("during")
	require.True(t, ok)
	assert.Less(t, p, 0.001)
}

func TestFitOLS_SimpleLine(t *testing.T) {
	// y = 1 + 2x + 작은 노이즈
	xs := []float64{0, 1, 2, 3, 4, 5}
	noise := []float64{0.1, -0.1, 0.05, -0.05, 0.02, -0.02}
	data := make([]float64, 0, len(xs)*2)
	y := make([]float64, len(xs))
	for i, v := range xs {
		data = append(data, 1, v)
		y[i] = 1 + 2*v + noise[i]
	}

	res, err := FitOLS(mat.NewDense(len(xs), 2, data), y, []string{"const", "x"})
	require.NoError(t, err)

	b, _ := res.Coefficient("x")
	assert.InDelta(t, 2.0, b, 0.05)
	assert.Greater(t, res.RSquared, 0.99)
}

func TestFitOLS_RankDeficient(t *testing.T) {
	// during 그룹이 비어 있음 → 열 전체가 0
	x := mat.NewDense(4, 3, []float64{
		1, 0, 0,
		1, 0, 0,
		0, 0, 1,
		0, 0, 1,
	})
	_, err := FitOLS(x, []float64{1, 2, 3, 4}, []string{"a", "b", "c"})
	assert.True(t, errors.Is(err, ErrRankDeficient))
}

func TestFitOLS_NoResidualDegreesOfFreedom(t *testing.T) {
	x := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	_, err := FitOLS(x, []float64{1, 2, 3}, []string{"a", "b", "c"})
	assert.True(t, errors.Is(err, ErrDegenerateFit))
}

func TestFitOLS_ZeroVariance(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 0,
		0, 1,
		0, 1,
	})
	_, err := FitOLS(x, []float64{3, 3, 5, 5}, []string{"a", "b"})
	assert.True(t, errors.Is(err, ErrDegenerateFit))
}

func TestFitOLS_ZeroVarianceWithRounding(t *testing.T) {
	// 3.3, 5.7은 이진 표현이 정확하지 않아 RSS가 0이 아닌 아주 작은 값으로 남음
	x := mat.NewDense(6, 3, []float64{
		1, 0, 0,
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0, 0, 1,
		0, 0, 1,
	})
	_, err := FitOLS(x, []float64{3.3, 3.3, 5.7, 3.3, 3.3, 3.3}, []string{"pre", "on", "post"})
	assert.True(t, errors.Is(err, ErrDegenerateFit))
}

func TestFitOLS_AllZero(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{1, 1, 1})
	_, err := FitOLS(x, []float64{0, 0, 0}, []string{"a"})
	assert.True(t, errors.Is(err, ErrDegenerateFit))
}

func TestFitOLS_DimensionChecks(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{1, 1})
	_, err := FitOLS(x, []float64{1}, []string{"a"})
	assert.Error(t, err)

	_, err = FitOLS(x, []float64{1, 2}, []string{"a", "b"})
	assert.Error(t, err)
}

func TestOLSResult_Summary(t *testing.T) {
	res := &OLSResult{
		Names: []string{"during"}, Coef: []float64{1}, StdErr: []float64{0.5},
		TValues: []float64{2}, PValues: []float64{0.05}, NObs: 10, DFResid: 9,
		RSquared: math.NaN(),
	}
	assert.Contains(t, res.Summary(), "during")
}
