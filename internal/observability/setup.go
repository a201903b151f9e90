package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/ca-srg/twangy/internal/config"
)

const flushTimeout = 5 * time.Second

// Flush drains pending spans and metrics and stops the exporters.
type Flush func(context.Context) error

// Init installs global tracer and meter providers. With OTEL_ENABLED=false
// the providers are local no-export ones, so instrumentation stays cheap.
func Init(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Flush, error) {
	noop := func(context.Context) error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := SettingsFrom(cfg)
	if err != nil {
		return noop, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !s.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		mp := sdkmetric.NewMeterProvider()
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		return newFlush(tp, mp, logger), nil
	}

	res, err := buildResource(ctx, s)
	if err != nil {
		return noop, fmt.Errorf("observability: resource: %w", err)
	}

	spans, err := newSpanExporter(ctx, s)
	if err != nil {
		return noop, fmt.Errorf("observability: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler(s)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans),
	)

	metrics, err := newMetricExporter(ctx, s)
	if err != nil {
		_ = newFlush(tp, nil, logger)(ctx)
		return noop, fmt.Errorf("observability: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics, sdkmetric.WithInterval(s.ExportInterval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	logger.Info("OpenTelemetry export enabled",
		zap.String("endpoint", s.Endpoint),
		zap.String("protocol", s.Protocol),
		zap.String("sampler", s.Sampler),
	)
	return newFlush(tp, mp, logger), nil
}

// newFlush returns a Flush that shuts the providers down on its first call;
// later calls return the first result.
func newFlush(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, logger *zap.Logger) Flush {
	var (
		once   sync.Once
		result error
	)
	return func(ctx context.Context) error {
		once.Do(func() { result = shutdownProviders(ctx, tp, mp, logger) })
		return result
	}
}

func shutdownProviders(ctx context.Context, tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}

	var errs []error
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer provider shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn("meter provider shutdown failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func sampler(s *Settings) sdktrace.Sampler {
	switch s.Sampler {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SamplerArg))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.AlwaysSample()
	}
}

func buildResource(ctx context.Context, s *Settings) (*resource.Resource, error) {
	attrs := make([]attribute.KeyValue, 0, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
}
