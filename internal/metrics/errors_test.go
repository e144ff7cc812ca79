package metrics

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestFriendlyErrorName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown error"},
		{"*httpclient.HTTPError", "HTTP error response"},
		{"*url.Error", "Request URL error"},
		{"*net.OpError", "Network error"},
		{"*runner.PanicError", "Workload panic"},
		{"context.deadlineExceededError", "Context deadline exceeded"},
		{"*github.com/acme/widget.TLSHandshakeFailure", "TLS Handshake Failure (widget)"},
		{"main.customError", "Custom Error"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FriendlyErrorName(tt.in); got != tt.want {
				t.Errorf("FriendlyErrorName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorDetail(t *testing.T) {
	if got := ErrorDetail(nil); got != "" {
		t.Errorf("ErrorDetail(nil) = %q, want empty", got)
	}
	got := ErrorDetail(errors.New("dial tcp: connection refused"))
	if !strings.HasSuffix(got, ": dial tcp: connection refused") {
		t.Errorf("ErrorDetail() = %q, want message suffix", got)
	}
}

func TestFlattenReasons(t *testing.T) {
	tests := []struct {
		name    string
		reasons map[Status]map[string]int64
		want    []ReasonCount
	}{
		{
			name:    "nil reasons",
			reasons: nil,
			want:    nil,
		},
		{
			name:    "empty details",
			reasons: map[Status]map[string]int64{StatusFailure: {}},
			want:    nil,
		},
		{
			name: "sorted by count desc",
			reasons: map[Status]map[string]int64{
				StatusFailure: {"HTTP 500": 5, "HTTP 404": 10},
				StatusError:   {"refused": 20},
			},
			want: []ReasonCount{
				{Status: StatusError, Detail: "refused", Count: 20},
				{Status: StatusFailure, Detail: "HTTP 404", Count: 10},
				{Status: StatusFailure, Detail: "HTTP 500", Count: 5},
			},
		},
		{
			name: "tie breaking by status then detail",
			reasons: map[Status]map[string]int64{
				StatusError:   {"b": 3},
				StatusFailure: {"z": 3, "a": 3},
			},
			want: []ReasonCount{
				{Status: StatusFailure, Detail: "a", Count: 3},
				{Status: StatusFailure, Detail: "z", Count: 3},
				{Status: StatusError, Detail: "b", Count: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenReasons(tt.reasons)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenReasons() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusSuccess, StatusFailure, StatusError} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", s, err)
		}
		var back Status
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v -> %q -> %v", s, text, back)
		}
	}
	var s Status
	if err := s.UnmarshalText([]byte("maybe")); err == nil {
		t.Error("expected error for unknown status")
	}
}
