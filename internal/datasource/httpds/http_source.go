// Package httpds reads a source over HTTP(S) with retry and exponential
// backoff on transient failures (transport errors, 429 and 5xx).
package httpds

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/RobertDonnan/ufo-notebook/internal/datasource"
)

// Config configures a Source. Zero values get defaults: Timeout 5m,
// InitialBackoff 200ms, MaxBackoff 5s. MaxRetries 0 means a single attempt.
type Config struct {
	URL            string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Transport replaces the default transport; tests use it.
	Transport http.RoundTripper
}

// Source downloads one URL. It is its own single part.
type Source struct {
	url            string
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	clock          clockwork.Clock
}

var (
	_ datasource.Source      = (*Source)(nil)
	_ datasource.Partitioned = (*Source)(nil)
)

// New builds a Source from cfg.
func New(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("httpds: url must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Source{
		url:            cfg.URL,
		client:         &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		clock:          clockwork.NewRealClock(),
	}, nil
}

// Parts implements datasource.Partitioned.
func (s *Source) Parts(ctx context.Context) ([]datasource.Source, error) {
	return []datasource.Source{s}, ctx.Err()
}

// Open GETs the URL and returns the response body. Statuses other than 2xx
// fail; 429 and 5xx are retried with backoff first.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			d := backoff(s.initialBackoff, attempt-1, s.maxBackoff)
			log.Printf("httpds: retry url=%s attempt=%d backoff=%s err=%v", s.url, attempt, d, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(d):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.Body, nil
		case retryable(resp.StatusCode):
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("httpds: retryable status %d from %s", resp.StatusCode, s.url)
		default:
			_ = resp.Body.Close()
			return nil, fmt.Errorf("httpds: GET %s: status %d", s.url, resp.StatusCode)
		}
	}
	return nil, lastErr
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff returns initial * 2^retry, clamped to max.
func backoff(initial time.Duration, retry int, max time.Duration) time.Duration {
	if retry > 30 {
		return max
	}
	if d := initial << retry; d < max {
		return d
	}
	return max
}
