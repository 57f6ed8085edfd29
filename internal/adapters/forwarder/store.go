package forwarder

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

const (
	storePath        = "/store_data"
	maxResponseBytes = 64 << 10
)

// Store delivers one record. Implementations classify failures by wrapping
// ErrTransientDelivery or ErrPermanentDelivery.
type Store interface {
	Send(ctx context.Context, requestID string, rec model.StoreRecord) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, requestID string, rec model.StoreRecord) error

// Send calls f.
func (f StoreFunc) Send(ctx context.Context, requestID string, rec model.StoreRecord) error {
	return f(ctx, requestID, rec)
}

// HTTPStore posts records as JSON to <endpoint>/store_data.
type HTTPStore struct {
	client *http.Client
	url    string
}

// HTTPStoreOption configures an HTTPStore.
type HTTPStoreOption func(*HTTPStore)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPStoreOption {
	return func(s *HTTPStore) {
		if c != nil {
			s.client = c
		}
	}
}

// NewHTTPStore creates an HTTPStore for the store at endpoint.
func NewHTTPStore(endpoint string, opts ...HTTPStoreOption) *HTTPStore {
	s := &HTTPStore{
		client: &http.Client{},
		url:    strings.TrimRight(endpoint, "/") + storePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeResponse is the store's reply envelope.
type storeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send implements Store. Deadlines come from ctx.
func (s *HTTPStore) Send(ctx context.Context, requestID string, rec model.StoreRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPermanentDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrPermanentDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransientDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var env storeResponse
	_ = json.Unmarshal(raw, &env)

	return classify(resp.StatusCode, env)
}

// classify maps a store answer to nil, transient or permanent.
func classify(code int, env storeResponse) error {
	msg := env.Message
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code >= 200 && code < 300:
		if strings.EqualFold(env.Status, "error") {
			return fmt.Errorf("%w: store answered %d with error status: %s", ErrTransientDelivery, code, msg)
		}
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: store answered %d: %s", ErrTransientDelivery, code, msg)
	case code >= 400:
		return fmt.Errorf("%w: store answered %d: %s", ErrPermanentDelivery, code, msg)
	default:
		return fmt.Errorf("%w: unexpected store status %d", ErrTransientDelivery, code)
	}
}
