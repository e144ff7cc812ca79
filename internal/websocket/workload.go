package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/torosent/vuload/internal/checks"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/runner"
)

const defaultWriteTimeout = 5 * time.Second

// HeaderInjector adds headers to the opening handshake, such as W3C trace
// context.
type HeaderInjector func(ctx context.Context, headers http.Header)

// Workload drives one virtual user's connection. Each iteration sends the
// configured messages in order and, when a receive timeout is set, waits for
// one reply per message. With no messages an iteration is a ping.
type Workload struct {
	client   *Client
	messages []string
	interval time.Duration
	await    bool
	checks   []checks.Check
	inject   HeaderInjector
}

var _ runner.Workload = (*Workload)(nil)

// NewFactory returns a runner.Factory that dials one connection per virtual
// user. A failed dial fails that virtual user's startup. Every connection
// adds to stats when it is non-nil.
func NewFactory(cfg *config.Config, inject HeaderInjector, stats *Stats) (runner.Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	list, err := checks.ParseAll(cfg.Checks)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	wsCfg := cfg.WebSocket

	return func(ctx context.Context, vu int) (runner.Workload, error) {
		w := &Workload{
			client: NewClient(Config{
				URL:              cfg.TargetURL,
				Headers:          headers,
				HandshakeTimeout: wsCfg.HandshakeTimeout,
				ReadTimeout:      wsCfg.ReceiveTimeout,
				WriteTimeout:     defaultWriteTimeout,
				Stats:            stats,
			}),
			messages: wsCfg.Messages,
			interval: wsCfg.MessageInterval,
			await:    wsCfg.ReceiveTimeout > 0,
			checks:   list,
			inject:   inject,
		}
		if err := w.connect(ctx); err != nil {
			return nil, fmt.Errorf("vu %d: %w", vu, err)
		}
		return w, nil
	}, nil
}

func (w *Workload) connect(ctx context.Context) error {
	var extra http.Header
	if w.inject != nil {
		extra = http.Header{}
		w.inject(ctx, extra)
	}
	return w.client.Connect(ctx, extra)
}

// Invoke runs one iteration. Transport problems are errors and drop the
// connection so the next iteration redials; a reply failing a check is a
// failure.
func (w *Workload) Invoke(ctx context.Context) runner.Outcome {
	if !w.client.Connected() {
		if err := w.connect(ctx); err != nil {
			return runner.Faulted(err)
		}
	}

	if len(w.messages) == 0 {
		if err := w.client.Ping(ctx); err != nil {
			w.client.drop()
			return runner.Faulted(err)
		}
		return runner.Succeeded()
	}

	for i, msg := range w.messages {
		if i > 0 && w.interval > 0 {
			timer := time.NewTimer(w.interval)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return runner.Faulted(ctx.Err())
			}
		}

		if err := w.client.SendMessage(ctx, Message{Type: gws.TextMessage, Data: []byte(msg)}); err != nil {
			w.client.drop()
			return runner.Faulted(err)
		}
		if !w.await {
			continue
		}
		reply, err := w.client.ReceiveMessage(ctx)
		if err != nil {
			// gorilla connections are unusable after a read error
			w.client.drop()
			return runner.Faulted(err)
		}
		if err := checks.EvaluateAll(reply.Data, w.checks); err != nil {
			return runner.Failed(err.Error())
		}
	}
	return runner.Succeeded()
}

// Close sends a close frame and releases the connection.
func (w *Workload) Close() error {
	return w.client.Close()
}
