package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf).With(String("doc", "d1"))
	log.Info("page opened", Int("page", 7))

	line := buf.String()
	for _, want := range []string{"INFO", "page opened", "doc=d1", "page=7"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if strings.Count(line, "\n") != 1 {
		t.Errorf("log line %q should be a single line", line)
	}
}

func TestFieldAccessors(t *testing.T) {
	tests := []struct {
		field Field
		key   string
		value interface{}
	}{
		{String("page", "7"), "page", "7"},
		{Int("count", 3), "count", 3},
		{Int64("bytes", int64(1024)), "bytes", int64(1024)},
		{Float64("zoom", 1.92), "zoom", 1.92},
		{Duration("elapsed", 100 * time.Millisecond), "elapsed", 100 * time.Millisecond},
	}
	for _, tt := range tests {
		if tt.field.Key() != tt.key {
			t.Errorf("Key() = %q, want %q", tt.field.Key(), tt.key)
		}
		if tt.field.Value() != tt.value {
			t.Errorf("Value() = %v, want %v", tt.field.Value(), tt.value)
		}
	}
}
