// Package probe checks whether an HTTP service is ready to take readings.
package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/gridedge/pkg/metrics"
)

const (
	healthPath     = "/health"
	defaultTimeout = 5 * time.Second
)

// Prober answers readiness for one base URL.
type Prober struct {
	client  *http.Client
	url     string
	timeout time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout bounds a single probe.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// New creates a Prober for the service at baseURL.
func New(baseURL string, opts ...Option) *Prober {
	p := &Prober{
		client:  &http.Client{},
		url:     strings.TrimRight(baseURL, "/") + healthPath,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ready reports whether GET <base>/health answered 200 within the timeout.
func (p *Prober) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		metrics.RecordProbe(false)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		metrics.RecordProbe(false)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	ready := resp.StatusCode == http.StatusOK
	metrics.RecordProbe(ready)
	return ready
}
