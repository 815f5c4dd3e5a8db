// Package transport posts EBICS documents to bank endpoints over
// HTTPS and classifies connectivity failures.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnreachable marks failures to reach or be served by the bank
// endpoint: connection errors, timeouts and non-200 statuses.
var ErrUnreachable = errors.New("bank endpoint unreachable")

// Config holds transport settings.
type Config struct {
	Timeout            time.Duration
	MinTLSVersion      uint16
	InsecureSkipVerify bool
}

// DefaultConfig returns the transport defaults: TLS 1.2 minimum and a
// 30 second request timeout.
func DefaultConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		MinTLSVersion: tls.VersionTLS12,
	}
}

// Client posts EBICS documents to bank endpoints.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a transport client.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion:         cfg.MinTLSVersion,
					InsecureSkipVerify: cfg.InsecureSkipVerify,
				},
			},
		},
	}
}

// PostXML sends an XML document to the endpoint and returns the
// response body. Connectivity failures and non-200 statuses are
// reported as ErrUnreachable.
func (c *Client) PostXML(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrUnreachable, resp.Status)
	}
	return data, nil
}
