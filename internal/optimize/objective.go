package optimize

import (
	"context"
	"fmt"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/engine"
	"github.com/wonny/dva-forecast/internal/forecast"
)

// Objective evaluates one candidate. It must be stateless: the Optimizer
// may call it from several goroutines at once.
type Objective func(ctx context.Context, hp contracts.HyperparameterSet) (float64, error)

// DefaultCVWindow 교차검증 윈도우 (730 / 180 / 365일)
func DefaultCVWindow() engine.CVWindow {
	return engine.CVWindow{
		InitialDays: contracts.CVInitialDays,
		PeriodDays:  contracts.CVPeriodDays,
		HorizonDays: contracts.CVHorizonDays,
	}
}

// CrossValidatedMAPE builds the production objective: every fold fits a
// fresh model with the candidate priors and quarterly seasonality, and the
// loss is the mean of per-horizon MAPE over all folds.
func CrossValidatedMAPE(history []engine.Point, window engine.CVWindow) Objective {
	// 읽기 전용 공유
	hist := append([]engine.Point(nil), history...)

	return func(ctx context.Context, hp contracts.HyperparameterSet) (float64, error) {
		fit := func(train []engine.Point) (engine.Predictor, error) {
			m, err := forecast.NewModel(hp, nil)
			if err != nil {
				return nil, err
			}
			if err := m.Fit(train); err != nil {
				return nil, err
			}
			return m, nil
		}

		rows, err := engine.CrossValidate(ctx, hist, window, fit)
		if err != nil {
			return 0, err
		}
		loss, err := engine.MeanMAPE(engine.PerformanceMetrics(rows))
		if err != nil {
			return 0, fmt.Errorf("performance metrics: %w", err)
		}
		return loss, nil
	}
}
