package storage

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// 아티팩트 컬럼 이름
// ⭐ SSOT: 외부 CSV 포맷과의 계약
const (
	ColDate        = "Date"
	ColRevenue     = "Revenue"
	ColEventDate   = "EventDate"
	ColDS          = "ds"
	ColY           = "y"
	ColYhat        = "yhat"
	ColProductID   = "product_id"
	ColAdProduct   = "ad_product"
	ForecastPrefix = "fcst_"
	ActualPrefix   = "actual_"
)

// =============================================================================
// Series inputs
// =============================================================================

// ReadRevenueSeries reads the (Date, Revenue) history, sorted by date.
// Duplicate dates are rejected.
func ReadRevenueSeries(path string) ([]contracts.Observation, error) {
	return readSeries(path, ColDate, ColRevenue)
}

// ReadTrainingSeries reads the (ds, y) optimizer training series
func ReadTrainingSeries(path string) ([]contracts.Observation, error) {
	return readSeries(path, ColDS, ColY)
}

func readSeries(path, dateCol, valueCol string) ([]contracts.Observation, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	idx, err := t.RequireColumns(dateCol, valueCol)
	if err != nil {
		return nil, ioError("read", path, err)
	}

	obs := make([]contracts.Observation, 0, len(t.Rows))
	seen := make(map[string]int, len(t.Rows))
	for i := range t.Rows {
		d, err := ParseDate(t.Cell(i, idx[0]))
		if err != nil {
			return nil, ioError("read", path, fmt.Errorf("row %d: %w", i+2, err))
		}
		v, err := ParseFloat(t.Cell(i, idx[1]))
		if err != nil {
			return nil, ioError("read", path, fmt.Errorf("row %d: %w", i+2, err))
		}
		key := d.Format(contracts.DateLayout)
		if prev, ok := seen[key]; ok {
			return nil, ioError("read", path, fmt.Errorf("row %d: duplicate date %s (first at row %d)", i+2, key, prev))
		}
		seen[key] = i + 2
		obs = append(obs, contracts.Observation{Date: d, Revenue: v})
	}

	contracts.SortObservations(obs)
	return obs, nil
}

// ReadEventCalendar reads EventDate rows. A missing file is an empty
// calendar; blank cells are skipped.
func ReadEventCalendar(path string) (contracts.EventCalendar, error) {
	if absent(path) {
		return contracts.EventCalendar{}, nil
	}
	t, err := ReadTable(path)
	if err != nil {
		return contracts.EventCalendar{}, err
	}
	idx, err := t.RequireColumns(ColEventDate)
	if err != nil {
		return contracts.EventCalendar{}, ioError("read", path, err)
	}

	var cal contracts.EventCalendar
	for i := range t.Rows {
		cell := t.Cell(i, idx[0])
		if cell == "" {
			continue
		}
		d, err := ParseDate(cell)
		if err != nil {
			return contracts.EventCalendar{}, ioError("read", path, fmt.Errorf("row %d: %w", i+2, err))
		}
		cal.Dates = append(cal.Dates, d)
	}
	return cal, nil
}

// ReadExclusions reads the ad_product exclusion list. A missing file is an
// empty list.
func ReadExclusions(path string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if path == "" || absent(path) {
		return out, nil
	}
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	idx, err := t.RequireColumns(ColAdProduct)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	for i := range t.Rows {
		if p := t.Cell(i, idx[0]); p != "" {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

// =============================================================================
// Best hyperparameters
// =============================================================================

// WriteBestParams persists the one-row best-parameter record
func WriteBestParams(path string, hp contracts.HyperparameterSet) error {
	if err := hp.Validate(); err != nil {
		return ioError("write", path, err)
	}
	return WriteTable(path, &Table{
		Header: []string{"changepoint_prior_scale", "seasonality_prior_scale", "fourier_order"},
		Rows: [][]string{{
			FormatFloat(hp.ChangepointPriorScale),
			FormatFloat(hp.SeasonalityPriorScale),
			fmt.Sprintf("%d", hp.FourierOrder),
		}},
	})
}

// ReadBestParams loads and validates the best-parameter record. The
// fourier order must be one of the declared choices, never an index.
func ReadBestParams(path string) (contracts.HyperparameterSet, error) {
	var hp contracts.HyperparameterSet

	t, err := ReadTable(path)
	if err != nil {
		return hp, err
	}
	idx, err := t.RequireColumns("changepoint_prior_scale", "seasonality_prior_scale", "fourier_order")
	if err != nil {
		return hp, ioError("read", path, err)
	}
	if len(t.Rows) == 0 {
		return hp, ioError("read", path, errors.New("no parameter row"))
	}

	vals := make([]float64, 3)
	for j, col := range idx {
		if vals[j], err = ParseFloat(t.Cell(0, col)); err != nil {
			return hp, ioError("read", path, fmt.Errorf("%s: %w", t.Header[col], err))
		}
	}
	if vals[2] != math.Trunc(vals[2]) {
		return hp, ioError("read", path, fmt.Errorf("fourier_order %v is not an integer", vals[2]))
	}

	hp = contracts.HyperparameterSet{
		ChangepointPriorScale: vals[0],
		SeasonalityPriorScale: vals[1],
		FourierOrder:          int(vals[2]),
	}
	if err := hp.Validate(); err != nil {
		return contracts.HyperparameterSet{}, ioError("read", path, err)
	}
	return hp, nil
}

// =============================================================================
// Forecasts
// =============================================================================

// WriteRawForecast persists (ds, yhat)
func WriteRawForecast(path string, recs []contracts.ForecastRecord) error {
	t := &Table{Header: []string{ColDS, ColYhat}, Rows: make([][]string, len(recs))}
	for i, r := range recs {
		t.Rows[i] = []string{r.Date.Format(contracts.DateLayout), FormatFloat(r.Predicted)}
	}
	return WriteTable(path, t)
}

// WriteFinalForecast persists (ds, yhat, product_id)
func WriteFinalForecast(path string, recs []contracts.ForecastRecord) error {
	t := &Table{Header: []string{ColDS, ColYhat, ColProductID}, Rows: make([][]string, len(recs))}
	for i, r := range recs {
		t.Rows[i] = []string{r.Date.Format(contracts.DateLayout), FormatFloat(r.Predicted), r.ProductID}
	}
	return WriteTable(path, t)
}

// ReadForecast reads a raw or final forecast. When the artifact has no
// product_id column every record gets defaultProductID. Missing yhat cells
// are read as NaN; any other unparseable yhat is an ArtifactIOError.
func ReadForecast(path, defaultProductID string) ([]contracts.ForecastRecord, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	idx, err := t.RequireColumns(ColDS, ColYhat)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	pidCol := t.Column(ColProductID)

	recs := make([]contracts.ForecastRecord, 0, len(t.Rows))
	for i := range t.Rows {
		d, err := ParseDate(t.Cell(i, idx[0]))
		if err != nil {
			return nil, ioError("read", path, fmt.Errorf("row %d: %w", i+2, err))
		}
		v, err := ParseOptionalFloat(t.Cell(i, idx[1]))
		if err != nil {
			return nil, ioError("read", path, fmt.Errorf("row %d %s: %w", i+2, ColYhat, err))
		}
		pid := defaultProductID
		if pidCol >= 0 {
			pid = t.Cell(i, pidCol)
		}
		recs = append(recs, contracts.ForecastRecord{Date: d, Predicted: v, ProductID: pid})
	}
	return recs, nil
}

// =============================================================================
// Accuracy scores
// =============================================================================

// WriteScores persists scores as one flat row, columns sorted by period
func WriteScores(path string, scores contracts.AccuracyScores) error {
	periods := scores.Periods()
	row := make([]string, len(periods))
	for i, p := range periods {
		row[i] = FormatFloat(scores[p])
	}
	return WriteTable(path, &Table{Header: periods, Rows: [][]string{row}})
}

// ReadScores reads the one-row scores record
func ReadScores(path string) (contracts.AccuracyScores, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	scores := make(contracts.AccuracyScores, len(t.Header))
	if len(t.Rows) == 0 {
		return scores, nil
	}
	for j, h := range t.Header {
		v, err := ParseFloat(t.Cell(0, j))
		if err != nil {
			return nil, ioError("read", path, fmt.Errorf("%s: %w", h, err))
		}
		scores[h] = v
	}
	return scores, nil
}

// ActualColumnFor fcst_<period> 컬럼에 대응하는 actual_<period> 컬럼 이름
func ActualColumnFor(forecastColumn string) string {
	return ActualPrefix + strings.TrimPrefix(forecastColumn, ForecastPrefix)
}

func absent(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}
