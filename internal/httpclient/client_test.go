package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/runner"
)

func mustBuilder(t *testing.T, cfg *config.Config) *RequestBuilder {
	t.Helper()
	b, err := NewRequestBuilder(cfg)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	return b
}

func readBody(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestRequestBuilderForecastPost(t *testing.T) {
	cfg := &config.Config{
		Method:    "post",
		TargetURL: "http://localhost:8080/weatherforecast",
		Headers:   map[string]string{"content-type": "application/json"},
		Body:      `{"city":"Oslo"}`,
	}
	req, err := mustBuilder(t, cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if req.Method != http.MethodPost || req.URL.String() != cfg.TargetURL {
		t.Fatalf("request line = %s %s", req.Method, req.URL)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	if req.ContentLength != int64(len(cfg.Body)) {
		t.Fatalf("ContentLength = %d, want %d", req.ContentLength, len(cfg.Body))
	}
	if got := readBody(t, req.Body); got != cfg.Body {
		t.Fatalf("body = %q, want %q", got, cfg.Body)
	}

	// redirects replay the body
	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody() error = %v", err)
	}
	if got := readBody(t, replay); got != cfg.Body {
		t.Fatalf("replayed body = %q, want %q", got, cfg.Body)
	}
}

func TestRequestBuilderExpandsIterationPlaceholders(t *testing.T) {
	b := mustBuilder(t, &config.Config{
		Method:    http.MethodPut,
		TargetURL: "http://localhost/carts/{{vu}}",
		Body:      `{"vu":{{vu}},"seq":{{iteration}}}`,
	})

	req, err := b.Build(runner.WithIteration(context.Background(), 7, 41))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := req.URL.Path; got != "/carts/7" {
		t.Fatalf("path = %q, want /carts/7", got)
	}
	want := `{"vu":7,"seq":41}`
	if req.ContentLength != int64(len(want)) {
		t.Fatalf("ContentLength = %d, want %d", req.ContentLength, len(want))
	}
	if got := readBody(t, req.Body); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestRequestBuilderWithoutBody(t *testing.T) {
	req, err := mustBuilder(t, &config.Config{TargetURL: "http://localhost"}).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Method != http.MethodGet {
		t.Fatalf("Method = %s, want GET", req.Method)
	}
	if req.Body != http.NoBody || req.ContentLength != 0 || req.GetBody != nil {
		t.Fatalf("expected no body, got length %d", req.ContentLength)
	}
}

func TestRequestBuilderNormalizesMethod(t *testing.T) {
	for _, in := range []string{"get", "Post", " put ", "DELETE", "patch"} {
		req, err := mustBuilder(t, &config.Config{Method: in, TargetURL: "http://localhost"}).Build(context.Background())
		if err != nil {
			t.Fatalf("Build(%q) error = %v", in, err)
		}
		if want := strings.ToUpper(strings.TrimSpace(in)); req.Method != want {
			t.Errorf("Method(%q) = %s, want %s", in, req.Method, want)
		}
	}
}

func TestRequestBuilderRejectsBadConfig(t *testing.T) {
	tests := map[string]*config.Config{
		"nil config":       nil,
		"missing target":   {},
		"empty header key": {TargetURL: "http://localhost", Headers: map[string]string{" ": "v"}},
		"newline in key":   {TargetURL: "http://localhost", Headers: map[string]string{"Bad\nKey": "v"}},
		"newline in value": {TargetURL: "http://localhost", Headers: map[string]string{"X-Test": "bad\rvalue"}},
		"body and file":    {TargetURL: "http://localhost", Body: "x", BodyFile: "body.json"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewRequestBuilder(cfg); err == nil {
				t.Fatal("NewRequestBuilder() error = nil")
			}
		})
	}
}

func TestRequestBuilderHeadersArePerRequest(t *testing.T) {
	b := mustBuilder(t, &config.Config{
		TargetURL: "http://localhost",
		Headers:   map[string]string{"X-Tenant": "blue", "X-Empty": ""},
	})
	first, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// trace propagation writes into the request headers
	first.Header.Set("Traceparent", "00-abc")
	first.Header.Set("X-Tenant", "red")

	second, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := second.Header.Get("X-Tenant"); got != "blue" {
		t.Fatalf("X-Tenant = %q, want blue", got)
	}
	if got := second.Header.Get("Traceparent"); got != "" {
		t.Fatalf("Traceparent leaked between requests: %q", got)
	}
	if _, ok := second.Header["X-Empty"]; !ok {
		t.Fatal("empty header value dropped")
	}
}

func TestNewClientTimeout(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := NewClient(timeout)
	defer client.CloseIdleConnections()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(timeout * 3)
	}))
	defer server.Close()

	start := time.Now()
	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var netErr net.Error
	if !errors.Is(err, context.DeadlineExceeded) && !(errors.As(err, &netErr) && netErr.Timeout()) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < timeout || elapsed > timeout*5 {
		t.Fatalf("request took %s with a %s timeout", elapsed, timeout)
	}
}

func TestNewClientPoolsConnections(t *testing.T) {
	client := NewClient(-time.Second)
	if client.Timeout != 0 {
		t.Fatalf("negative timeout should disable the client timeout, got %s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", client.Transport)
	}
	if transport.MaxIdleConnsPerHost < 2 || transport.IdleConnTimeout == 0 {
		t.Fatalf("transport does not keep connections for reuse: %+v", transport)
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	tests := []struct {
		err  *HTTPError
		want string
	}{
		{&HTTPError{StatusCode: 503}, "HTTP 503"},
		{&HTTPError{StatusCode: 404, Body: "not found"}, "HTTP 404: not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
