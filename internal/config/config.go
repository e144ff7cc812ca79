package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolWebSocket Protocol = "websocket"
)

type Config struct {
	TargetURL     string            `mapstructure:"target"`
	Method        string            `mapstructure:"method"`
	Headers       map[string]string `mapstructure:"headers"`
	Body          string            `mapstructure:"body"`
	BodyFile      string            `mapstructure:"body_file"`
	VirtualUsers  int               `mapstructure:"vus"`
	Duration      time.Duration     `mapstructure:"duration"`
	SleepBetween  time.Duration     `mapstructure:"sleep"`
	Rate          int               `mapstructure:"rate"`
	Arrival       ArrivalConfig     `mapstructure:"arrival"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	ExpectStatus  []int             `mapstructure:"expect_status"`
	Checks        []string          `mapstructure:"checks"`
	Protocol      Protocol          `mapstructure:"protocol"`
	WebSocket     WebSocketConfig   `mapstructure:"websocket"`
	Thresholds    []string          `mapstructure:"thresholds"`
	JSONOutput    bool              `mapstructure:"json_output"`
	SummaryExport string            `mapstructure:"summary_export"`
	Quiet         bool              `mapstructure:"quiet"`
	LogErrors     bool              `mapstructure:"log_errors"`
	Log           LogConfig         `mapstructure:"log"`
	MetricsAddr   string            `mapstructure:"metrics_addr"`
	Tracing       TracingConfig     `mapstructure:"tracing"`
	ConfigFile    string            `mapstructure:"-"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

type WebSocketConfig struct {
	Messages         []string      `mapstructure:"messages"`          // Messages sent each iteration
	MessageInterval  time.Duration `mapstructure:"message_interval"`  // Interval between messages
	ReceiveTimeout   time.Duration `mapstructure:"receive_timeout"`   // Timeout for receiving a reply
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // WebSocket handshake timeout
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// TracingConfig configures OpenTelemetry export. Tracing is off unless an
// endpoint is set here or in OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil follows Enabled
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q is not an absolute URL", target))
	}

	if c.VirtualUsers < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.SleepBetween < 0 {
		issues = append(issues, "sleep must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and bodyFile are mutually exclusive")
	}
	for _, code := range c.ExpectStatus {
		if code < 100 || code > 599 {
			issues = append(issues, fmt.Sprintf("expect_status: %d is not a valid HTTP status code", code))
		}
	}
	for idx, check := range c.Checks {
		if strings.TrimSpace(check) == "" {
			issues = append(issues, fmt.Sprintf("checks[%d]: expression cannot be empty", idx))
		}
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateProtocolConfig(c.Protocol, c.TargetURL, c.WebSocket)...)
	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings lists settings that are valid but worth surfacing before a run.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("High rate limit configured (%d iterations/s). Ensure you have authorization to test the target system.", c.Rate))
	}
	if c.VirtualUsers > 500 {
		warnings = append(warnings, fmt.Sprintf("High virtual user count configured (%d). Ensure you have authorization to test the target system.", c.VirtualUsers))
	}
	if c.Tracing.Enabled() && c.Tracing.Insecure {
		warnings = append(warnings, "Trace export runs without TLS (tracing.insecure: true).")
	}
	return warnings
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateProtocolConfig(protocol Protocol, target string, ws WebSocketConfig) []string {
	var issues []string

	// Default to HTTP if not specified
	if protocol == "" {
		return nil
	}

	switch protocol {
	case ProtocolHTTP, ProtocolWebSocket:
	default:
		issues = append(issues, fmt.Sprintf("protocol: must be 'http' or 'websocket', got %q", protocol))
		return issues
	}

	if protocol == ProtocolWebSocket {
		if u, err := url.Parse(strings.TrimSpace(target)); err == nil && u.Scheme != "" {
			if u.Scheme != "ws" && u.Scheme != "wss" {
				issues = append(issues, fmt.Sprintf("websocket: target scheme must be ws or wss, got %q", u.Scheme))
			}
		}
		if ws.MessageInterval < 0 {
			issues = append(issues, "websocket: message_interval must be >= 0")
		}
		if ws.ReceiveTimeout < 0 {
			issues = append(issues, "websocket: receive_timeout must be >= 0")
		}
		if ws.HandshakeTimeout < 0 {
			issues = append(issues, "websocket: handshake_timeout must be >= 0")
		}
	}

	return issues
}

func validateLogConfig(log LogConfig) []string {
	var issues []string
	if log.Level != "" {
		if _, err := zapcore.ParseLevel(log.Level); err != nil {
			issues = append(issues, fmt.Sprintf("log: unknown level %q", log.Level))
		}
	}
	switch strings.ToLower(log.Format) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format must be 'console' or 'json', got %q", log.Format))
	}
	return issues
}

func validateTracingConfig(tr TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tr.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tr.Protocol))
	}
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tr.SampleRate))
	}
	return issues
}
