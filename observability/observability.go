package observability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type int64Field struct {
	key string
	val int64
}

func (f int64Field) Key() string        { return f.key }
func (f int64Field) Value() interface{} { return f.val }

type float64Field struct {
	key string
	val float64
}

func (f float64Field) Key() string        { return f.key }
func (f float64Field) Value() interface{} { return f.val }

type durationField struct {
	key string
	val time.Duration
}

func (f durationField) Key() string        { return f.key }
func (f durationField) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field                 { return stringField{key, value} }
func Int(key string, value int) Field                { return intField{key, value} }
func Int64(key string, value int64) Field            { return int64Field{key, value} }
func Float64(key string, value float64) Field        { return float64Field{key, value} }
func Duration(key string, value time.Duration) Field { return durationField{key, value} }
func Error(key string, err error) Field              { return errorField{key, err} }

// NewLogger returns a Logger writing one line per entry to w. Intended for
// CLIs and examples; embedders usually adapt their own logging framework to
// the Logger interface instead.
func NewLogger(w io.Writer) Logger { return &writerLogger{w: w} }

type writerLogger struct {
	w      io.Writer
	fields []Field
}

func (l *writerLogger) log(level, msg string, fields []Field) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %-5s %s", time.Now().Format(time.RFC3339), level, msg)
	for _, f := range l.fields {
		fmt.Fprintf(&buf, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(&buf, " %s=%v", f.Key(), f.Value())
	}
	buf.WriteByte('\n')
	l.w.Write(buf.Bytes())
}

func (l *writerLogger) Debug(msg string, fields ...Field) { l.log("DEBUG", msg, fields) }
func (l *writerLogger) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields) }
func (l *writerLogger) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields) }
func (l *writerLogger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }

func (l *writerLogger) With(fields ...Field) Logger {
	combined := make([]Field, 0, len(l.fields)+len(fields))
	combined = append(combined, l.fields...)
	combined = append(combined, fields...)
	return &writerLogger{w: l.w, fields: combined}
}

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// Tracer provides distributed tracing hooks for library operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Standard metric names emitted by the library.
const (
	MetricPreviewTime   = "pdfview.preview.duration"
	MetricOverlayTime   = "pdfview.overlay.duration"
	MetricPageOpenTime  = "pdfview.page.open.duration"
	MetricVisiblePages  = "pdfview.pages.visible"
	MetricEvictionCount = "pdfview.evictions.count"
	MetricRelayoutCount = "pdfview.relayout.count"
	MetricTextureBytes  = "pdfview.texture.bytes"
	MetricRetainedBytes = "pdfview.retained.bytes"
)
