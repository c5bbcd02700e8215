package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrDelivery is wrapped by every failed webhook delivery.
var ErrDelivery = errors.New("webhook delivery failed")

const DefaultTimeout = 5 * time.Second

// DeliveryError describes a single failed delivery. StatusCode is zero when no
// response was received.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("webhook %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("webhook %s: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDelivery}
	}
	return []error{ErrDelivery, e.Err}
}

// TransportConfig controls how webhook requests are made.
type TransportConfig struct {
	Method    string
	Headers   map[string]string
	UserAgent string
	Timeout   time.Duration
}

// DefaultTransportConfig posts JSON with a five second timeout.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Method:    http.MethodPost,
		Headers:   map[string]string{"Content-Type": "application/json"},
		UserAgent: "Faultline/1.0",
		Timeout:   DefaultTimeout,
	}
}

// Deliverer sends one payload to one URL.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload any) error
}

// Transport delivers JSON payloads over HTTP.
type Transport struct {
	cfg    TransportConfig
	client *http.Client
}

// NewTransport creates a Transport. Zero-valued config fields fall back to the defaults.
func NewTransport(cfg TransportConfig) *Transport {
	def := DefaultTransportConfig()
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	cfg.Headers = mergeHeaders(def.Headers, cfg.Headers)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Transport{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// mergeHeaders layers custom over defaults. Names compare case-insensitively because
// viper lowercases map keys read from configuration.
func mergeHeaders(defaults, custom map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(custom))
	for k, v := range custom {
		merged[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range defaults {
		k = http.CanonicalHeaderKey(k)
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return merged
}

// Config returns the effective transport configuration.
func (t *Transport) Config() TransportConfig {
	return t.cfg
}

// Deliver sends payload to url once. Anything other than a 2xx response is a *DeliveryError.
func (t *Transport) Deliver(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{URL: url, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, t.cfg.Method, url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	if t.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", t.cfg.UserAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &DeliveryError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}
