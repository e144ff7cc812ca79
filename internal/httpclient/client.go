package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/vuload/internal/config"
)

// HTTPError is returned when a response status is not accepted.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RequestBuilder turns the run configuration into one request per iteration.
type RequestBuilder struct {
	method   string
	target   string
	template bool
	headers  http.Header
	payload  Payload
}

func NewRequestBuilder(cfg *config.Config) (*RequestBuilder, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	target := strings.TrimSpace(cfg.TargetURL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	payload, err := NewPayload(cfg)
	if err != nil {
		return nil, err
	}

	headers, err := buildHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}

	return &RequestBuilder{
		method:   method,
		target:   target,
		template: strings.Contains(target, VUPlaceholder) || strings.Contains(target, IterationPlaceholder),
		headers:  headers,
		payload:  payload,
	}, nil
}

// buildHeaders canonicalizes keys and rejects values that would split the
// header block.
func buildHeaders(in map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if canonicalKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}
	return headers, nil
}

// Build returns the request of the iteration carried by ctx. The body can be
// replayed through GetBody for redirects.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target := b.target
	if b.template {
		target = expand(ctx, target)
	}

	body, length, err := b.payload.Open(ctx)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		_ = body.Close()
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, b.method, target, body)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	req.Header = b.headers.Clone()
	req.ContentLength = length
	if length > 0 {
		req.GetBody = func() (io.ReadCloser, error) {
			rc, _, err := b.payload.Open(ctx)
			return rc, err
		}
	}
	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
