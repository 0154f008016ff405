package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// The metric helpers emit through the global OpenTelemetry meter.
// Instruments are created once per name and cached; if no meter provider
// has been installed, emission is a cheap no-op on the default provider.

type instruments struct {
	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge
}

var metricInstruments = &instruments{
	counters:   map[string]metric.Int64Counter{},
	histograms: map[string]metric.Float64Histogram{},
	gauges:     map[string]metric.Float64Gauge{},
}

// Counter increments a counter metric by 1. Labels are key-value pairs.
// Example: Counter("infergate.tasks.submitted", "model", "qwen3")
func Counter(name string, labels ...string) {
	c, err := metricInstruments.counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(labelAttrs(labels)...))
}

// Histogram records a value in a distribution. Use for latencies, sizes
// and queue wait times.
func Histogram(name string, value float64, labels ...string) {
	h, err := metricInstruments.histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(labelAttrs(labels)...))
}

// Gauge sets a current-value metric, e.g. active worker count.
func Gauge(name string, value float64, labels ...string) {
	g, err := metricInstruments.gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(labelAttrs(labels)...))
}

func (i *instruments) counter(name string) (metric.Int64Counter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok := i.counters[name]; ok {
		return c, nil
	}
	c, err := otel.Meter(instrumentationName).Int64Counter(name)
	if err != nil {
		return nil, err
	}
	i.counters[name] = c
	return c, nil
}

func (i *instruments) histogram(name string) (metric.Float64Histogram, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if h, ok := i.histograms[name]; ok {
		return h, nil
	}
	h, err := otel.Meter(instrumentationName).Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	i.histograms[name] = h
	return h, nil
}

func (i *instruments) gauge(name string) (metric.Float64Gauge, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if g, ok := i.gauges[name]; ok {
		return g, nil
	}
	g, err := otel.Meter(instrumentationName).Float64Gauge(name)
	if err != nil {
		return nil, err
	}
	i.gauges[name] = g
	return g, nil
}

func labelAttrs(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// AddSpanEvent attaches an event to the span carried by ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordSpanError records err on the span carried by ctx, if any.
func RecordSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
}
