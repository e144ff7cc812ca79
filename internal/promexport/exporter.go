// Package promexport exposes live run statistics in the Prometheus text
// format. An Exporter observes every iteration recorded by the aggregator and
// serves its own registry on /metrics.
package promexport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/vuload/internal/metrics"
)

const namespace = "vuload"

// Exporter holds the collectors for a single run.
type Exporter struct {
	labels     prometheus.Labels
	registry   *prometheus.Registry
	iterations *prometheus.CounterVec
	duration   prometheus.Histogram
}

// New creates an Exporter with a private registry. activeVUs, when non-nil,
// backs the vuload_active_vus gauge.
func New(runID string, activeVUs func() int) *Exporter {
	labels := prometheus.Labels{}
	if runID != "" {
		labels["run_id"] = runID
	}

	e := &Exporter{
		labels:   labels,
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "iterations_total",
				Help:        "Total number of workload iterations by outcome",
				ConstLabels: labels,
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "iteration_duration_seconds",
				Help:        "Iteration duration in seconds",
				Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
				ConstLabels: labels,
			},
		),
	}

	e.registry.MustRegister(e.iterations, e.duration)
	for _, s := range []metrics.Status{metrics.StatusSuccess, metrics.StatusFailure, metrics.StatusError} {
		e.iterations.WithLabelValues(s.String())
	}

	if activeVUs != nil {
		e.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "active_vus",
				Help:        "Number of virtual users currently running iterations",
				ConstLabels: labels,
			},
			func() float64 { return float64(activeVUs()) },
		))
	}
	return e
}

// Observe implements metrics.Observer.
func (e *Exporter) Observe(it metrics.Iteration) {
	status := it.Status
	if status != metrics.StatusSuccess && status != metrics.StatusFailure {
		status = metrics.StatusError
	}
	e.iterations.WithLabelValues(status.String()).Inc()
	e.duration.Observe(it.Elapsed.Seconds())
}

// AddProtocolCounters exposes counters kept by a protocol workload, such as
// WebSocket messages, as vuload_protocol_events_total{protocol,event}. read
// is called on every scrape.
func (e *Exporter) AddProtocolCounters(protocol string, read func() map[string]int64) error {
	labels := prometheus.Labels{"protocol": protocol}
	for k, v := range e.labels {
		labels[k] = v
	}
	return e.registry.Register(&protocolCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "protocol", "events_total"),
			"Protocol-level events counted by the workload",
			[]string{"event"},
			labels,
		),
		read: read,
	})
}

type protocolCollector struct {
	desc *prometheus.Desc
	read func() map[string]int64
}

func (c *protocolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *protocolCollector) Collect(ch chan<- prometheus.Metric) {
	for event, v := range c.read() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), event)
	}
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Server is a running /metrics endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start listens on addr and serves /metrics in the background. Bind errors
// are returned synchronously.
func (e *Exporter) Start(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server and waits for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}
