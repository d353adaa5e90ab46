package optimize

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// TrialState 시도 결과 상태
type TrialState string

const (
	TrialComplete TrialState = "COMPLETE"
	TrialFailed   TrialState = "FAIL"
)

// Trial 한 번의 목적함수 평가
type Trial struct {
	Number int
	Params Assignment
	Loss   float64
	State  TrialState
	Err    error
}

// Strategy proposes candidates and learns from finished trials.
// Implementations are not safe for concurrent use; the Optimizer calls them
// from a single goroutine.
type Strategy interface {
	// Suggest returns up to n candidates to evaluate next
	Suggest(n int) []Assignment
	// Observe records a finished trial (complete or failed)
	Observe(t Trial)
}

// TPEConfig Tree-structured Parzen Estimator 설정
type TPEConfig struct {
	Gamma         float64 // good 그룹 비율
	StartupTrials int     // 모델 기반 탐색 전 랜덤 시도 수
	EICandidates  int     // 제안당 l(x) 샘플 수
	PriorWeight   float64
}

// DefaultTPEConfig 기본 설정
func DefaultTPEConfig() TPEConfig {
	return TPEConfig{
		Gamma:         0.25,
		StartupTrials: 20,
		EICandidates:  24,
		PriorWeight:   1.0,
	}
}

// TPE sequential model-based strategy. Completed trials are split into a
// good set (lowest Gamma fraction of losses) and a bad set; each dimension
// gets a Parzen density per set, and the candidate maximising l(x)/g(x)
// among EICandidates draws from l is proposed. Failed trials are never part
// of either density.
type TPE struct {
	space   Space
	cfg     TPEConfig
	rng     *rand.Rand
	history []Trial
}

// NewTPE creates a strategy with a deterministic seed
func NewTPE(space Space, cfg TPEConfig, seed uint64) *TPE {
	def := DefaultTPEConfig()
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		cfg.Gamma = def.Gamma
	}
	if cfg.StartupTrials <= 0 {
		cfg.StartupTrials = def.StartupTrials
	}
	if cfg.EICandidates <= 0 {
		cfg.EICandidates = def.EICandidates
	}
	if cfg.PriorWeight <= 0 {
		cfg.PriorWeight = def.PriorWeight
	}
	return &TPE{
		space: space,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Observe implements Strategy
func (t *TPE) Observe(trial Trial) {
	t.history = append(t.history, trial)
}

// Suggest implements Strategy
func (t *TPE) Suggest(n int) []Assignment {
	out := make([]Assignment, 0, n)
	complete := t.completed()

	for i := 0; i < n; i++ {
		if len(complete) < t.cfg.StartupTrials {
			out = append(out, t.space.Sample(t.rng))
			continue
		}
		out = append(out, t.suggestModel(complete))
	}
	return out
}

func (t *TPE) completed() []Trial {
	var done []Trial
	for _, tr := range t.history {
		if tr.State == TrialComplete {
			done = append(done, tr)
		}
	}
	return done
}

func (t *TPE) suggestModel(complete []Trial) Assignment {
	sorted := append([]Trial(nil), complete...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Loss < sorted[j].Loss })

	nGood := int(math.Ceil(t.cfg.Gamma * float64(len(sorted))))
	if nGood < 1 {
		nGood = 1
	}
	good, bad := sorted[:nGood], sorted[nGood:]

	models := make([]dimModel, len(t.space))
	for i, d := range t.space {
		models[i] = dimModel{
			dim:  d,
			good: t.parzen(d, good),
			bad:  t.parzen(d, bad),
		}
	}

	var best Assignment
	bestScore := math.Inf(-1)
	for c := 0; c < t.cfg.EICandidates; c++ {
		cand := make(Assignment, len(t.space))
		score := 0.0
		for _, m := range models {
			v := m.good.sample(t.rng)
			cand[m.dim.Name] = m.dim.externalValue(v)
			score += m.good.logPDF(v) - m.bad.logPDF(v)
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best
}

type dimModel struct {
	dim  Dimension
	good density
	bad  density
}

// density 한 차원에 대한 Parzen 추정 (탐색 좌표계)
type density interface {
	sample(rng *rand.Rand) float64
	logPDF(u float64) float64
}

func (t *TPE) parzen(d Dimension, trials []Trial) density {
	if d.IsCategorical() {
		return newCategorical(d, trials, t.cfg.PriorWeight)
	}
	obs := make([]float64, 0, len(trials))
	for _, tr := range trials {
		if v, ok := tr.Params[d.Name]; ok {
			obs = append(obs, d.internal(v))
		}
	}
	return newMixture(d.internal(d.Low), d.internal(d.High), obs, t.cfg.PriorWeight)
}

// externalValue 탐색 좌표 → 실제 값
// 범주형은 좌표가 선택지 인덱스이므로 실제 선택지 값으로 변환
func (d Dimension) externalValue(u float64) float64 {
	if d.IsCategorical() {
		return d.Choices[int(u)]
	}
	return d.external(u)
}

// =============================================================================
// Continuous: truncated Gaussian mixture + uniform prior
// =============================================================================

type mixture struct {
	low, high   float64
	mus, sigmas []float64
	priorWeight float64
}

func newMixture(low, high float64, obs []float64, priorWeight float64) *mixture {
	m := &mixture{low: low, high: high, priorWeight: priorWeight}
	if len(obs) == 0 {
		return m
	}

	sorted := append([]float64(nil), obs...)
	sort.Float64s(sorted)

	width := high - low
	minSigma := width / math.Min(100, float64(len(sorted)+1))

	// bandwidth = 양쪽 이웃(경계 포함)까지 거리 중 큰 값
	for i, mu := range sorted {
		left := mu - low
		if i > 0 {
			left = mu - sorted[i-1]
		}
		right := high - mu
		if i < len(sorted)-1 {
			right = sorted[i+1] - mu
		}
		sigma := math.Max(left, right)
		sigma = math.Min(math.Max(sigma, minSigma), width)
		m.mus = append(m.mus, mu)
		m.sigmas = append(m.sigmas, sigma)
	}
	return m
}

func (m *mixture) totalWeight() float64 {
	return m.priorWeight + float64(len(m.mus))
}

func (m *mixture) sample(rng *rand.Rand) float64 {
	pick := rng.Float64() * m.totalWeight()
	if pick < m.priorWeight || len(m.mus) == 0 {
		return m.low + rng.Float64()*(m.high-m.low)
	}
	i := int(pick - m.priorWeight)
	if i >= len(m.mus) {
		i = len(m.mus) - 1
	}

	// 절단 정규분포: 거절 샘플링 후 실패하면 경계로 클램프
	for attempt := 0; attempt < 32; attempt++ {
		v := m.mus[i] + rng.NormFloat64()*m.sigmas[i]
		if v >= m.low && v <= m.high {
			return v
		}
	}
	return math.Min(math.Max(m.mus[i], m.low), m.high)
}

func (m *mixture) logPDF(u float64) float64 {
	total := m.totalWeight()
	p := m.priorWeight / total / (m.high - m.low)
	for i, mu := range m.mus {
		n := distuv.Normal{Mu: mu, Sigma: m.sigmas[i]}
		z := n.CDF(m.high) - n.CDF(m.low)
		if z <= 0 {
			continue
		}
		p += n.Prob(u) / z / total
	}
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}

// =============================================================================
// Categorical: smoothed frequency
// =============================================================================

type categorical struct {
	weights []float64
}

func newCategorical(d Dimension, trials []Trial, priorWeight float64) *categorical {
	c := &categorical{weights: make([]float64, len(d.Choices))}
	for i := range c.weights {
		c.weights[i] = priorWeight / float64(len(d.Choices))
	}
	for _, tr := range trials {
		if idx := d.choiceIndex(tr.Params[d.Name]); idx >= 0 {
			c.weights[idx]++
		}
	}
	var sum float64
	for _, w := range c.weights {
		sum += w
	}
	for i := range c.weights {
		c.weights[i] /= sum
	}
	return c
}

func (c *categorical) sample(rng *rand.Rand) float64 {
	r := rng.Float64()
	for i, w := range c.weights {
		if r < w {
			return float64(i)
		}
		r -= w
	}
	return float64(len(c.weights) - 1)
}

func (c *categorical) logPDF(u float64) float64 {
	i := int(u)
	if i < 0 || i >= len(c.weights) {
		return math.Inf(-1)
	}
	return math.Log(c.weights[i])
}
