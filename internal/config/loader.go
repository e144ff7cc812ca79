package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag is applied.
func Defaults() Config {
	return Config{
		Method:       http.MethodGet,
		Headers:      map[string]string{},
		VirtualUsers: 1,
		Timeout:      30 * time.Second,
		Arrival:      ArrivalConfig{Model: ArrivalModelUniform},
		Protocol:     ProtocolHTTP,
		WebSocket: WebSocketConfig{
			ReceiveTimeout:   10 * time.Second,
			HandshakeTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "vuload",
			SampleRate:  1.0,
		},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Values from the file override defaults; flags override the file.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	return LoadFlags(cmd.Flags(), len(args) == 0)
}

// LoadFlags builds a Config from an already parsed flag set. noArgs reports
// whether the command line was empty, in which case help is shown unless a
// config file was given.
func LoadFlags(flagSet *pflag.FlagSet, noArgs bool) (*Config, error) {
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			return nil, ErrHelpRequested
		}
	}

	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = f.Value.String()
	}
	if noArgs && configPath == "" {
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.BodyFile = strings.TrimSpace(cfg.BodyFile)
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return &cfg, nil
}

// applyConfigSettings overlays the keys present in a decoded config file
// onto cfg. Keys the file leaves out keep their current values.
func applyConfigSettings(cfg *Config, raw map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	s, err := toSettings(raw)
	if err != nil {
		return err
	}

	if err := errors.Join(
		decode(s, &cfg.TargetURL, toText, "target"),
		decode(s, &cfg.Body, toRaw, "body"),
		decode(s, &cfg.BodyFile, toText, "body_file", "bodyfile", "body-file"),
		decode(s, &cfg.VirtualUsers, toInt, "vus", "virtualusers", "virtual_users", "virtual-users"),
		decode(s, &cfg.Duration, toDuration, "duration"),
		decode(s, &cfg.SleepBetween, toDuration, "sleep", "sleepbetween", "sleep_between", "sleep-between"),
		decode(s, &cfg.Rate, toInt, "rate"),
		decode(s, &cfg.Timeout, toDuration, "timeout"),
		decode(s, &cfg.ExpectStatus, toStatusCodes, "expect_status", "expectstatus", "expect-status"),
		decode(s, &cfg.Checks, toList, "checks"),
		decode(s, &cfg.Thresholds, toList, "thresholds"),
		decode(s, &cfg.JSONOutput, toBool, "json_output", "jsonoutput", "json-output"),
		decode(s, &cfg.SummaryExport, toText, "summary_export", "summaryexport", "summary-export"),
		decode(s, &cfg.Quiet, toBool, "quiet"),
		decode(s, &cfg.LogErrors, toBool, "log_errors", "logerrors", "log-errors"),
		decode(s, &cfg.MetricsAddr, toText, "metrics_addr", "metricsaddr", "metrics-addr"),
	); err != nil {
		return err
	}

	var method string
	if err := decode(s, &method, toText, "method"); err != nil {
		return err
	}
	if method != "" {
		cfg.Method = method
	}

	var protocol string
	if err := decode(s, &protocol, toLowerText, "protocol"); err != nil {
		return err
	}
	if protocol != "" {
		cfg.Protocol = Protocol(protocol)
	}

	headers := map[string]string{}
	if err := decode(s, &headers, toHeaders, "headers"); err != nil {
		return err
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	for k, v := range headers {
		cfg.Headers[k] = v
	}

	if raw, ok := s.lookup("arrival", "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	return errors.Join(
		applyWebSocketConfig(&cfg.WebSocket, s),
		applyLogConfig(&cfg.Log, s),
		applyTracingConfig(&cfg.Tracing, s),
	)
}

// parseArrival accepts either a bare model name or a table with a model key.
func parseArrival(value any) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	if _, ok := value.(string); ok {
		model, err := toLowerText(value)
		return ArrivalConfig{Model: ArrivalModel(model)}, err
	}
	entry, err := toSettings(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	if _, ok := entry.lookup("model"); !ok {
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
	var model string
	if err := decode(entry, &model, toLowerText, "model"); err != nil {
		return ArrivalConfig{}, err
	}
	return ArrivalConfig{Model: ArrivalModel(model)}, nil
}

func applyWebSocketConfig(ws *WebSocketConfig, root settings) error {
	s, ok, err := root.section("websocket")
	if !ok || err != nil {
		return err
	}
	return wrapSection("websocket", errors.Join(
		decode(s, &ws.Messages, toList, "messages"),
		decode(s, &ws.MessageInterval, toDuration, "message_interval", "messageinterval", "message-interval"),
		decode(s, &ws.ReceiveTimeout, toDuration, "receive_timeout", "receivetimeout", "receive-timeout"),
		decode(s, &ws.HandshakeTimeout, toDuration, "handshake_timeout", "handshaketimeout", "handshake-timeout"),
	))
}

func applyLogConfig(log *LogConfig, root settings) error {
	s, ok, err := root.section("log")
	if !ok || err != nil {
		return err
	}
	return wrapSection("log", errors.Join(
		decode(s, &log.Level, toLowerText, "level"),
		decode(s, &log.Format, toLowerText, "format"),
	))
}

func applyTracingConfig(tr *TracingConfig, root settings) error {
	s, ok, err := root.section("tracing")
	if !ok || err != nil {
		return err
	}
	if _, ok := s.lookup("propagate"); ok {
		var v bool
		if err := decode(s, &v, toBool, "propagate"); err != nil {
			return wrapSection("tracing", err)
		}
		tr.Propagate = &v
	}
	return wrapSection("tracing", errors.Join(
		decode(s, &tr.Endpoint, toText, "endpoint"),
		decode(s, &tr.Protocol, toLowerText, "protocol"),
		decode(s, &tr.ServiceName, toText, "service_name", "servicename", "service-name"),
		decode(s, &tr.SampleRate, toFloat, "sample_rate", "samplerate", "sample-rate"),
		decode(s, &tr.Insecure, toBool, "insecure"),
	))
}

func wrapSection(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
