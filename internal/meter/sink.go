package meter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/gridedge/internal/domain/model"
)

const receivePath = "/receive_data"

// Sink receives generated readings.
type Sink interface {
	Send(ctx context.Context, r model.RawReading) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r model.RawReading) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, r model.RawReading) error {
	return f(ctx, r)
}

// HTTPSink posts readings to an edge's /receive_data.
type HTTPSink struct {
	client *http.Client
	url    string
}

// NewHTTPSink creates an HTTPSink for the edge at baseURL. A nil client
// uses a default one.
func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSink{client: client, url: strings.TrimRight(baseURL, "/") + receivePath}
}

// Send implements Sink. Any answer but 200 is an error.
func (s *HTTPSink) Send(ctx context.Context, r model.RawReading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: edge answered %d: %s", ErrSend, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
