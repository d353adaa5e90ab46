package forecast

import (
	"math"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// PostProcess applies the business rules to a raw forecast: every yhat
// below the revenue floor (or NaN) is raised to the floor, and records whose
// product is in the exclusion list are dropped. The input is not modified.
// Applying PostProcess to its own output returns the same records.
func PostProcess(recs []contracts.ForecastRecord, exclusions map[string]struct{}) []contracts.ForecastRecord {
	out := make([]contracts.ForecastRecord, 0, len(recs))
	for _, r := range recs {
		// 빈 product_id는 제외 대상이 아님
		if r.ProductID != "" {
			if _, excluded := exclusions[r.ProductID]; excluded {
				continue
			}
		}
		if math.IsNaN(r.Predicted) || r.Predicted < contracts.RevenueFloor {
			r.Predicted = contracts.RevenueFloor
		}
		out = append(out, r)
	}
	return out
}
