package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/runner"
)

// Placeholders expanded in request bodies on every iteration.
const (
	VUPlaceholder        = "{{vu}}"
	IterationPlaceholder = "{{iteration}}"
)

const maxPayloadFileSize = 32 << 20

// Payload produces the request body of one iteration.
type Payload interface {
	// Open returns the body for the iteration carried by ctx and its length.
	Open(ctx context.Context) (io.ReadCloser, int64, error)
}

// NewPayload builds the payload from the inline body or the body file. A
// file is read once here so disk reads never show up in iteration latency.
// Bodies containing placeholders are expanded per iteration.
func NewPayload(cfg *config.Config) (Payload, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	data := []byte(cfg.Body)
	if path := strings.TrimSpace(cfg.BodyFile); path != "" {
		if cfg.Body != "" {
			return nil, errors.New("body and body file cannot both be provided")
		}
		var err error
		if data, err = readPayloadFile(path); err != nil {
			return nil, err
		}
	}

	if bytes.Contains(data, []byte(VUPlaceholder)) || bytes.Contains(data, []byte(IterationPlaceholder)) {
		return templatePayload(data), nil
	}
	return staticPayload(data), nil
}

func readPayloadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("body file %q is a directory", path)
	}
	if info.Size() > maxPayloadFileSize {
		return nil, fmt.Errorf("body file %q exceeds %d bytes", path, maxPayloadFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("body file: %w", err)
	}
	return data, nil
}

type staticPayload []byte

func (p staticPayload) Open(context.Context) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(p)), int64(len(p)), nil
}

// templatePayload substitutes the iteration's VU and sequence number.
// Outside an iteration both expand to 0.
type templatePayload []byte

func (p templatePayload) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	body := expand(ctx, string(p))
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func expand(ctx context.Context, s string) string {
	vu, _ := runner.VUFromContext(ctx)
	seq, _ := runner.IterationFromContext(ctx)
	return strings.NewReplacer(
		VUPlaceholder, strconv.Itoa(vu),
		IterationPlaceholder, strconv.FormatInt(seq, 10),
	).Replace(s)
}
