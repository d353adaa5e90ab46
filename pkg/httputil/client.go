package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/dva-forecast/pkg/logger"
)

// Client is an HTTP client wrapper with logging
// ⭐ SSOT: 모든 HTTP 요청은 이 클라이언트를 통해서만 수행
// 파이프라인 실행은 단발성이므로 재시도하지 않음 (스케줄러가 다음 주기에 재실행)
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a new HTTP client with the given timeout
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second // Default timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	return c.Do(req)
}

// Do executes the request with logging.
// Satisfies the HTTPDoer interface of the Pushgateway client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	url := req.URL.String()
	method := req.Method

	// Log request
	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
	}).Debug("HTTP request started")

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	// Log response
	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   method,
			"url":      url,
			"duration": duration,
			"error":    err.Error(),
		}).Error("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}
