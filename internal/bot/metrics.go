package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Metrics keeps in-process counters for the bot loop.
type Metrics struct {
	Received       atomic.Int64
	Replies        atomic.Int64
	Errors         atomic.Int64
	TotalLatencyNs atomic.Int64
}

func (m *Metrics) RecordReceived() { m.Received.Add(1) }
func (m *Metrics) RecordReply(d time.Duration) {
	m.Replies.Add(1)
	m.TotalLatencyNs.Add(d.Nanoseconds())
}
func (m *Metrics) RecordError() { m.Errors.Add(1) }

var (
	botMetricsOnce     sync.Once
	receivedCounter    metric.Int64Counter
	replyCounter       metric.Int64Counter
	errorCounter       metric.Int64Counter
	replyLatencyMillis metric.Float64Histogram
)

func initBotOTelMetrics() {
	botMetricsOnce.Do(func() {
		meter := otel.Meter("twangy/bot")
		logger := zap.L()

		var err error
		receivedCounter, err = meter.Int64Counter(
			"twangy.messages.received",
			metric.WithDescription("Messages delivered to the bot"),
		)
		if err != nil {
			logger.Warn("observability: failed to create received counter", zap.Error(err))
		}

		replyCounter, err = meter.Int64Counter(
			"twangy.replies.sent",
			metric.WithDescription("Greetings posted by the bot"),
		)
		if err != nil {
			logger.Warn("observability: failed to create reply counter", zap.Error(err))
		}

		errorCounter, err = meter.Int64Counter(
			"twangy.errors.total",
			metric.WithDescription("Failed reply sends"),
		)
		if err != nil {
			logger.Warn("observability: failed to create error counter", zap.Error(err))
		}

		replyLatencyMillis, err = meter.Float64Histogram(
			"twangy.reply.latency",
			metric.WithDescription("Time from message receipt to reply acknowledgement (ms)"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			logger.Warn("observability: failed to create latency histogram", zap.Error(err))
		}
	})
}

func recordReceived(ctx context.Context, attrs []attribute.KeyValue) {
	initBotOTelMetrics()
	if receivedCounter != nil {
		receivedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordReply(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, hadError bool) {
	initBotOTelMetrics()
	if hadError {
		if errorCounter != nil {
			errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
		return
	}
	if replyCounter != nil {
		replyCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if replyLatencyMillis != nil {
		replyLatencyMillis.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	}
}
