package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelicContextKey is the context key holding the *newrelic.Application
type NewRelicContextKey struct{}

// NewContext returns a copy of ctx carrying app. A nil app is ignored.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, NewRelicContextKey{}, app)
}

// FromContext returns the *newrelic.Application stored in ctx, if any.
func FromContext(ctx context.Context) (*newrelic.Application, bool) {
	nr, ok := ctx.Value(NewRelicContextKey{}).(*newrelic.Application)
	return nr, ok && nr != nil
}

// StartTransaction starts a New Relic transaction and returns a context that
// carries it. The returned func ends the transaction. Without an application
// in ctx both are no-ops.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	nr, ok := FromContext(ctx)
	if !ok {
		return ctx, func() {}
	}

	m := nr.StartTransaction(name)
	return newrelic.NewContext(ctx, m), m.End
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	nr, ok := FromContext(ctx)
	if ok {
		nr.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	nr, ok := FromContext(ctx)
	if ok {
		nr.RecordCustomMetric(metricName, float64(duration/time.Millisecond))
	}
}

// RecordEvent records a custom event. Attributes with nil values are dropped.
func RecordEvent(ctx context.Context, eventName string, attributes map[string]interface{}) {
	nr, ok := FromContext(ctx)
	if !ok {
		return
	}

	filtered := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		if v != nil {
			filtered[k] = v
		}
	}
	nr.RecordCustomEvent(eventName, filtered)
}
