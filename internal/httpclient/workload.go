package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/checks"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/runner"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// HeaderInjector adds headers to every outgoing request, such as W3C trace
// context.
type HeaderInjector func(ctx context.Context, headers http.Header)

// Workload sends one HTTP request per iteration. It is safe for concurrent
// use, so a single instance can be shared by every virtual user.
type Workload struct {
	client  *http.Client
	builder *RequestBuilder
	accept  map[int]struct{}
	checks  []checks.Check
	inject  HeaderInjector
}

var _ runner.Workload = (*Workload)(nil)

// NewWorkload builds an HTTP workload from cfg. client may be nil, in which
// case one is created with cfg.Timeout.
func NewWorkload(cfg *config.Config, client *http.Client, inject HeaderInjector) (*Workload, error) {
	builder, err := NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	list, err := checks.ParseAll(cfg.Checks)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = NewClient(cfg.Timeout)
	}
	var accept map[int]struct{}
	if len(cfg.ExpectStatus) > 0 {
		accept = make(map[int]struct{}, len(cfg.ExpectStatus))
		for _, code := range cfg.ExpectStatus {
			accept[code] = struct{}{}
		}
	}
	return &Workload{
		client:  client,
		builder: builder,
		accept:  accept,
		checks:  list,
		inject:  inject,
	}, nil
}

// Invoke sends the request. Transport failures are errors; rejected status
// codes and failed checks are failures.
func (w *Workload) Invoke(ctx context.Context) runner.Outcome {
	req, err := w.builder.Build(ctx)
	if err != nil {
		return runner.Faulted(fmt.Errorf("build request: %w", err))
	}
	if w.inject != nil {
		w.inject(ctx, req.Header)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return runner.Faulted(err)
	}
	defer resp.Body.Close()

	// A body cut short by the server is a transport error, whatever the status.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if err != nil {
		return runner.Faulted(fmt.Errorf("read body: %w", err))
	}
	// Drain what is left so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if !w.accepted(resp.StatusCode) {
		snippet := body
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		return runner.Outcome{
			Status: metrics.StatusFailure,
			Detail: "HTTP " + strconv.Itoa(resp.StatusCode),
			Err: &HTTPError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(snippet)),
			},
		}
	}

	if err := checks.EvaluateAll(body, w.checks); err != nil {
		return runner.Failed(err.Error())
	}
	return runner.Succeeded()
}

func (w *Workload) accepted(code int) bool {
	if w.accept == nil {
		return code < 400
	}
	_, ok := w.accept[code]
	return ok
}

// Close releases idle connections held by the client.
func (w *Workload) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
