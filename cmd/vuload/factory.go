package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/httpclient"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/websocket"
)

// newFactory builds the workload factory for the configured protocol. HTTP
// shares one workload and connection pool across virtual users; WebSocket
// dials one connection per virtual user and also returns the counters its
// connections share.
func newFactory(cfg *config.Config, propagate bool) (runner.Factory, *websocket.Stats, error) {
	var inject func(context.Context, http.Header)
	if propagate {
		inject = tracing.InjectHTTPHeaders
	}

	switch cfg.Protocol {
	case config.ProtocolWebSocket:
		stats := &websocket.Stats{}
		f, err := websocket.NewFactory(cfg, inject, stats)
		if err != nil {
			return nil, nil, err
		}
		return f, stats, nil
	case config.ProtocolHTTP, "":
		w, err := httpclient.NewWorkload(cfg, httpclient.NewClient(cfg.Timeout), inject)
		if err != nil {
			return nil, nil, err
		}
		return runner.Shared(w), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
}
