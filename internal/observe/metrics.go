// Package observe carries tmassist's telemetry: OpenTelemetry metric
// instruments, trace helpers, span-correlated logging and the HTTP
// middleware that ties them to each request.
//
// Instruments are created from whatever [metric.MeterProvider] the caller
// supplies. Production code uses [DefaultMetrics], backed by the global
// provider that [InitProvider] installs; tests pass their own provider to
// [NewMetrics].
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/tmassist"

// Metrics is the set of instruments tmassist records to. Safe for
// concurrent use.
type Metrics struct {
	// LLMDuration is completion latency in seconds, by model and slot.
	LLMDuration metric.Float64Histogram
	// PromptTokens is the counted size of each prompt, by model.
	PromptTokens metric.Int64Histogram

	ProviderRequests  metric.Int64Counter // provider, kind, status
	ProviderErrors    metric.Int64Counter // provider, kind
	Escalations       metric.Int64Counter // reason
	Translations      metric.Int64Counter // status
	TranslationsSaved metric.Int64Counter // format

	// HTTPRequestDuration is request latency in seconds, by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// Model calls range from sub-second answers to several retries.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80}

// Prompts range from a bare sentence to the fallback model's budget.
var tokenBuckets = []float64{256, 1024, 4096, 16384, 65536, 131072, 245000, 500000, 1000000}

// instruments accumulates creation errors so NewMetrics can report them
// together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}

	tokens, err := b.meter.Int64Histogram("tmassist.llm.prompt_tokens",
		metric.WithDescription("Counted prompt size in tokens."),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(tokenBuckets...),
	)
	b.errs = append(b.errs, err)

	m := &Metrics{
		LLMDuration:         b.seconds("tmassist.llm.duration", "Latency of model completions.", latencyBuckets...),
		PromptTokens:        tokens,
		ProviderRequests:    b.counter("tmassist.provider.requests", "Provider API requests by provider, kind and status."),
		ProviderErrors:      b.counter("tmassist.provider.errors", "Provider errors by provider and kind."),
		Escalations:         b.counter("tmassist.gateway.escalations", "Switches from the primary to the fallback model by reason."),
		Translations:        b.counter("tmassist.translations", "Translation requests by status."),
		TranslationsSaved:   b.counter("tmassist.translations.saved", "Records appended to the translation memory by format."),
		HTTPRequestDuration: b.seconds("tmassist.http.request.duration", "HTTP request latency by method and path."),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics], created on first use
// from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the Prometheus exporter.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordEscalation counts a switch to the fallback model.
func (m *Metrics) RecordEscalation(ctx context.Context, reason string) {
	m.Escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranslation counts a /translate outcome: "ok" or a failure label.
func (m *Metrics) RecordTranslation(ctx context.Context, status string) {
	m.Translations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordSaved(ctx context.Context, format string) {
	m.TranslationsSaved.Add(ctx, 1, metric.WithAttributes(attribute.String("format", format)))
}
