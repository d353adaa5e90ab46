package searchspace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/optimize"
)

// Load reads and validates a search space file
// 알 수 없는 키는 오류 (오타로 기본값이 조용히 쓰이는 것 방지)
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contracts.NewError(contracts.KindArtifactIO, "read "+path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, contracts.NewError(contracts.KindArtifactIO, "parse "+path, err)
	}

	if err := Validate(&f); err != nil {
		return nil, contracts.NewError(contracts.KindArtifactIO, "validate "+path, err)
	}

	return &f, nil
}

// Hash returns the sha256 of the canonical JSON form
// 실행 로그에 남겨 어떤 공간으로 탐색했는지 추적
func Hash(f *File) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal search space: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Space overlays the file onto optimize.DefaultSpace
func (f *File) Space() optimize.Space {
	space := optimize.DefaultSpace()
	for i, d := range space {
		switch d.Name {
		case optimize.ParamChangepointPriorScale:
			space[i] = overlayRange(d, f.ChangepointPriorScale)
		case optimize.ParamSeasonalityPriorScale:
			space[i] = overlayRange(d, f.SeasonalityPriorScale)
		case optimize.ParamFourierOrder:
			if len(f.FourierOrder) > 0 {
				choices := make([]float64, len(f.FourierOrder))
				for j, o := range f.FourierOrder {
					choices[j] = float64(o)
				}
				d.Choices = choices
				space[i] = d
			}
		}
	}
	return space
}

func overlayRange(d optimize.Dimension, r *Range) optimize.Dimension {
	if r == nil {
		return d
	}
	d.Low, d.High = r.Low, r.High
	if r.Log != nil {
		d.Log = *r.Log
	}
	return d
}
