package searchspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/internal/contracts"
	"github.com/wonny/dva-forecast/internal/optimize"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
version: "2024-q3"
changepoint_prior_scale:
  low: 0.01
  high: 0.5
seasonality_prior_scale:
  low: 0.1
  high: 10
  log: false
fourier_order: [5, 10]
`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-q3", f.Version)

	space := f.Space()
	require.NoError(t, space.Validate())
	require.Len(t, space, 3)

	byName := map[string]optimize.Dimension{}
	for _, d := range space {
		byName[d.Name] = d
	}
	cps := byName[optimize.ParamChangepointPriorScale]
	assert.Equal(t, 0.01, cps.Low)
	assert.Equal(t, 0.5, cps.High)
	assert.True(t, cps.Log)

	assert.False(t, byName[optimize.ParamSeasonalityPriorScale].Log)
	assert.Equal(t, []float64{5, 10}, byName[optimize.ParamFourierOrder].Choices)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	f, err := Load(writeFile(t, "version: v1\nfourier_order: [15]\n"))
	require.NoError(t, err)

	space := f.Space()
	def := optimize.DefaultSpace()
	assert.Equal(t, def[0], space[0])
	assert.Equal(t, def[1], space[1])
	assert.Equal(t, []float64{15}, space[2].Choices)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "version: v1\nfourier_orders: [5]\n", "fourier_orders"},
		{"missing version", "fourier_order: [5]\n", "version"},
		{"order outside choices", "version: v1\nfourier_order: [7]\n", "fourier_order"},
		{"duplicate order", "version: v1\nfourier_order: [5, 5]\n", "duplicate"},
		{"non positive low", "version: v1\nchangepoint_prior_scale: {low: 0, high: 1}\n", "changepoint_prior_scale"},
		{"inverted range", "version: v1\nseasonality_prior_scale: {low: 2, high: 1}\n", "must be below"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrArtifactIO))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, contracts.ErrArtifactIO))
}

func TestHash(t *testing.T) {
	a := &File{Version: "v1", FourierOrder: []int{5, 10}}
	b := &File{Version: "v1", FourierOrder: []int{5, 10}}
	c := &File{Version: "v1", FourierOrder: []int{10}}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, _ := Hash(b)
	hc, _ := Hash(c)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
}
