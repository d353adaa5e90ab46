package searchspace

import (
	"fmt"
	"math"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// ValidationError 검증 실패 (스테이지 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks that the file only narrows what the engine accepts
func Validate(f *File) error {
	if f.Version == "" {
		return ValidationError{"version", "required"}
	}

	if err := validateRange("changepoint_prior_scale", f.ChangepointPriorScale); err != nil {
		return err
	}
	if err := validateRange("seasonality_prior_scale", f.SeasonalityPriorScale); err != nil {
		return err
	}

	// fourier_order: 허용 후보의 부분집합, 중복 금지
	seen := make(map[int]bool, len(f.FourierOrder))
	for _, o := range f.FourierOrder {
		if !allowedOrder(o) {
			return ValidationError{"fourier_order", fmt.Sprintf("%d is not one of %v", o, contracts.FourierOrderChoices)}
		}
		if seen[o] {
			return ValidationError{"fourier_order", fmt.Sprintf("duplicate %d", o)}
		}
		seen[o] = true
	}

	return nil
}

func validateRange(field string, r *Range) error {
	if r == nil {
		return nil
	}
	if !(r.Low > 0) || math.IsInf(r.High, 0) || math.IsNaN(r.High) {
		return ValidationError{field, "bounds must be positive and finite"}
	}
	if !(r.Low < r.High) {
		return ValidationError{field, fmt.Sprintf("low %v must be below high %v", r.Low, r.High)}
	}
	return nil
}

func allowedOrder(o int) bool {
	for _, c := range contracts.FourierOrderChoices {
		if c == o {
			return true
		}
	}
	return false
}
