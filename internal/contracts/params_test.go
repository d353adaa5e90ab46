package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHyperparameterSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  HyperparameterSet
		wantErr bool
	}{
		{"valid", HyperparameterSet{0.05, 0.5, 10}, false},
		{"index instead of value", HyperparameterSet{0.05, 0.5, 1}, true},
		{"zero changepoint prior", HyperparameterSet{0, 0.5, 5}, true},
		{"nan seasonality prior", HyperparameterSet{0.05, math.NaN(), 5}, true},
		{"inf changepoint prior", HyperparameterSet{math.Inf(1), 0.5, 15}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventCalendar_Earliest(t *testing.T) {
	cal := EventCalendar{Dates: []time.Time{
		time.Date(2023, 7, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 7, 12, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC),
	}}

	got, ok := cal.Earliest()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2022, 7, 12, 0, 0, 0, 0, time.UTC), got)

	_, ok = EventCalendar{}.Earliest()
	assert.False(t, ok)
}

func TestAccuracyScores_Periods(t *testing.T) {
	s := AccuracyScores{"fcst_q2": 1, "fcst_q1": 2}
	assert.Equal(t, []string{"fcst_q1", "fcst_q2"}, s.Periods())
}
