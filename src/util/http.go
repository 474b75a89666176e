package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trackdrop/src/debug"
)

type HttpClientConfig struct {
	Timeout int // seconds, per request
	Retries int // extra attempts for transient failures
}

type HttpClient struct {
	Client  *http.Client
	retries uint64
}

func NewHttp(cfg HttpClientConfig) *HttpClient {
	return &HttpClient{
		Client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		retries: uint64(cfg.Retries),
	}
}

// MakeRequest performs a request and returns the response body. Transient
// failures (network errors, 5xx, rate limits) are retried with exponential
// backoff up to the configured attempt count; terminal statuses are not.
// The payload is a byte slice, not a reader, so every retry sends the full
// body again.
func (c *HttpClient) MakeRequest(ctx context.Context, method, url string, payload []byte, headers map[string]string) ([]byte, error) {
	var body []byte

	operation := func() error {
		var err error
		body, err = c.doRequest(ctx, method, url, payload, headers)
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *HttpClient) doRequest(ctx context.Context, method, url string, payload []byte, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request: %s", err.Error())
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	for key, value := range headers {
		req.Header.Add(key, value)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransient, err.Error())
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("response body close failed", "context", err.Error())
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %s", ErrTransient, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("response info", debug.RuntimeAttr(string(body)))
		return nil, fmt.Errorf("%w: got %d from %s", ClassifyStatus(resp.StatusCode), resp.StatusCode, url)
	}

	return body, nil
}

func ParseResp[T any](body []byte, target *T) error {

	if err := json.Unmarshal(body, target); err != nil {
		slog.Debug("response info", debug.RuntimeAttr(string(body)))
		return fmt.Errorf("%w: error unmarshaling response body: %s", ErrMalformed, err.Error())
	}
	return nil
}
