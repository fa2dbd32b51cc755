package sqlengine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var engineTracer = otel.Tracer("github.com/latticedb/resolver/internal/driver/sqlengine")

var engineMetrics struct {
	retryCount metric.Int64Counter
	lockWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/latticedb/resolver/internal/driver/sqlengine")
	engineMetrics.retryCount, _ = m.Int64Counter("resolver.db.retry_count",
		metric.WithDescription("SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
	engineMetrics.lockWaitMs, _ = m.Float64Histogram("resolver.db.lock_wait_ms",
		metric.WithDescription("time spent waiting to acquire a transaction's connection"),
		metric.WithUnit("ms"),
	)
}

func spanAttrs(dialect, operation, table string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", dialect),
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
