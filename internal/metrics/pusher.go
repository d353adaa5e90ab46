package metrics

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"

	"github.com/wonny/dva-forecast/internal/contracts"
)

// HTTPDoer push.HTTPDoer (pkg/httputil.Client가 만족)
type HTTPDoer = push.HTTPDoer

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// GaugeName maps a forecast column to its gauge name: mape_<column>
func GaugeName(period string) string {
	return "mape_" + invalidNameChars.ReplaceAllString(period, "_")
}

// Publisher MAPE 점수를 Pushgateway로 전송
// ⭐ SSOT: 메트릭 이름 규칙은 GaugeName
type Publisher struct {
	gateway string
	job     string
	client  HTTPDoer
	log     zerolog.Logger
}

// NewPublisher creates a publisher for the given gateway URL and job
func NewPublisher(gateway, job string, client HTTPDoer, log zerolog.Logger) *Publisher {
	if !strings.Contains(gateway, "://") {
		gateway = "http://" + gateway
	}
	return &Publisher{
		gateway: gateway,
		job:     job,
		client:  client,
		log:     log.With().Str("component", "metrics.publisher").Logger(),
	}
}

// Publish pushes one gauge per period. 실행마다 새 레지스트리 (이전 기간 게이지 잔존 방지)
func (p *Publisher) Publish(ctx context.Context, scores contracts.AccuracyScores) error {
	if len(scores) == 0 {
		return contracts.Errorf(contracts.KindMetricsPublish, "publish", "no scores to publish")
	}

	reg := prometheus.NewRegistry()
	for _, period := range scores.Periods() {
		name := GaugeName(period)
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name,
			Help: fmt.Sprintf("MAPE (%%) of forecast column %s", period),
		})
		if err := reg.Register(g); err != nil {
			return contracts.NewError(contracts.KindMetricsPublish, "register "+name, err)
		}
		g.Set(scores[period])
	}

	err := push.New(p.gateway, p.job).
		Gatherer(reg).
		Client(p.client).
		PushContext(ctx)
	if err != nil {
		p.log.Error().Err(err).Str("gateway", p.gateway).Msg("push failed")
		return contracts.NewError(contracts.KindMetricsPublish, "push", err)
	}

	p.log.Info().
		Str("gateway", p.gateway).
		Str("job", p.job).
		Int("gauges", len(scores)).
		Msg("scores published")
	return nil
}
