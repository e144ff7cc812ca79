package httpclient

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/runner"
)

func openPayload(t *testing.T, ctx context.Context, p Payload) (string, int64) {
	t.Helper()
	rc, n, err := p.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return readBody(t, rc), n
}

func TestNewPayload(t *testing.T) {
	dir := t.TempDir()
	orderFile := filepath.Join(dir, "order.json")
	if err := os.WriteFile(orderFile, []byte(`{"vu":{{vu}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	plainFile := filepath.Join(dir, "plain.json")
	if err := os.WriteFile(plainFile, []byte(`{"item":1}`), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := runner.WithIteration(context.Background(), 3, 9)
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"empty", config.Config{}, ""},
		{"inline", config.Config{Body: "hello"}, "hello"},
		{"inline template", config.Config{Body: "vu={{vu}} it={{iteration}}"}, "vu=3 it=9"},
		{"file", config.Config{BodyFile: plainFile}, `{"item":1}`},
		{"file template", config.Config{BodyFile: " " + orderFile + " "}, `{"vu":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPayload(&tt.cfg)
			if err != nil {
				t.Fatalf("NewPayload() error = %v", err)
			}
			got, n := openPayload(t, ctx, p)
			if got != tt.want || n != int64(len(tt.want)) {
				t.Fatalf("Open() = %q (%d), want %q (%d)", got, n, tt.want, len(tt.want))
			}
		})
	}
}

func TestNewPayloadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]*config.Config{
		"nil config":    nil,
		"body and file": {Body: "x", BodyFile: filepath.Join(dir, "x.json")},
		"missing file":  {BodyFile: filepath.Join(dir, "missing.json")},
		"directory":     {BodyFile: dir},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPayload(cfg); err == nil {
				t.Fatal("NewPayload() error = nil")
			}
		})
	}
}

func TestPayloadFileReadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.json")
	if err := os.WriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewPayload(&config.Config{BodyFile: path})
	if err != nil {
		t.Fatalf("NewPayload() error = %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if got, _ := openPayload(t, context.Background(), p); got != "first" {
			t.Fatalf("iteration %d body = %q, want first", i, got)
		}
	}
}

func TestTemplatePayloadPerIteration(t *testing.T) {
	p, err := NewPayload(&config.Config{Body: "{{vu}}/{{iteration}}"})
	if err != nil {
		t.Fatalf("NewPayload() error = %v", err)
	}

	// Outside an iteration the placeholders expand to zero.
	if got, _ := openPayload(t, context.Background(), p); got != "0/0" {
		t.Fatalf("body = %q, want 0/0", got)
	}
	for seq := int64(0); seq < 3; seq++ {
		got, _ := openPayload(t, runner.WithIteration(context.Background(), 2, seq), p)
		if want := "2/" + strconv.FormatInt(seq, 10); got != want {
			t.Fatalf("body = %q, want %q", got, want)
		}
	}
}
