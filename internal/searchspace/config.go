// Package searchspace loads an optional YAML override of the optimizer's
// hyperparameter search space.
package searchspace

// File 탐색 공간 설정 파일
// 생략된 섹션은 기본 공간 값을 그대로 사용
type File struct {
	Version               string `yaml:"version" json:"version"`
	ChangepointPriorScale *Range `yaml:"changepoint_prior_scale" json:"changepoint_prior_scale,omitempty"`
	SeasonalityPriorScale *Range `yaml:"seasonality_prior_scale" json:"seasonality_prior_scale,omitempty"`
	FourierOrder          []int  `yaml:"fourier_order" json:"fourier_order,omitempty"`
}

// Range 연속형 차원 경계
type Range struct {
	Low  float64 `yaml:"low" json:"low"`
	High float64 `yaml:"high" json:"high"`
	Log  *bool   `yaml:"log" json:"log,omitempty"` // 기본값: true
}
