package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/dva-forecast/internal/contracts"
)

func TestGaugeName(t *testing.T) {
	assert.Equal(t, "mape_fcst_q1", GaugeName("fcst_q1"))
	assert.Equal(t, "mape_fcst_2024_07", GaugeName("fcst_2024-07"))
	assert.Equal(t, "mape_fcst_a_b", GaugeName("fcst_a b"))
}

func TestPublish(t *testing.T) {
	var (
		path   string
		method string
		body   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		method = r.Method
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, "dva_forecast_validation", http.DefaultClient, zerolog.Nop())
	err := p.Publish(context.Background(), contracts.AccuracyScores{"fcst_q1": 12.5, "fcst_q2": 7})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/dva_forecast_validation", path)
	assert.NotEmpty(t, body)
}

func TestPublish_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewPublisher(server.URL, "job", http.DefaultClient, zerolog.Nop())
	err := p.Publish(context.Background(), contracts.AccuracyScores{"fcst_q1": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrMetricsPublish))
}

func TestPublish_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	p := NewPublisher(addr, "job", http.DefaultClient, zerolog.Nop())
	err := p.Publish(ctx, contracts.AccuracyScores{"fcst_q1": 1})
	assert.True(t, errors.Is(err, contracts.ErrMetricsPublish))
}

func TestPublish_NameCollision(t *testing.T) {
	p := NewPublisher("http://unused", "job", http.DefaultClient, zerolog.Nop())
	err := p.Publish(context.Background(), contracts.AccuracyScores{"fcst_a-b": 1, "fcst_a_b": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrMetricsPublish))
}

func TestPublish_Empty(t *testing.T) {
	p := NewPublisher("http://unused", "job", http.DefaultClient, zerolog.Nop())
	assert.True(t, errors.Is(p.Publish(context.Background(), nil), contracts.ErrMetricsPublish))
}
