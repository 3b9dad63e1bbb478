package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/radgate/radgate/internal/tracker"
)

const transferScopeName = "github.com/radgate/radgate/transfers"

// InstrumentedObserver forwards transfer lifecycle events to an inner
// observer and counts them in radgate.transfers.* metrics.
// Use WrapObserver to create one; it returns the inner observer unchanged
// when telemetry is disabled.
type InstrumentedObserver struct {
	inner    tracker.Observer
	received metric.Int64Counter
	outcomes metric.Int64Counter
	bytes    metric.Int64Counter
	files    metric.Int64Counter
}

// WrapObserver returns o decorated with OTel instrumentation.
// When telemetry is disabled, o is returned as-is with zero overhead.
func WrapObserver(o tracker.Observer) tracker.Observer {
	if !Enabled() {
		return o
	}
	m := Meter(transferScopeName)
	received, _ := m.Int64Counter("radgate.transfers.received",
		metric.WithDescription("Studies received from modalities"),
	)
	outcomes, _ := m.Int64Counter("radgate.transfers.completed",
		metric.WithDescription("Transfers reaching a terminal state, by outcome"),
	)
	bytes, _ := m.Int64Counter("radgate.transfers.bytes",
		metric.WithDescription("Bytes forwarded on successful transfers"),
		metric.WithUnit("By"),
	)
	files, _ := m.Int64Counter("radgate.transfers.files",
		metric.WithDescription("Files forwarded on successful transfers"),
	)
	return &InstrumentedObserver{
		inner:    o,
		received: received,
		outcomes: outcomes,
		bytes:    bytes,
		files:    files,
	}
}

// RegisterPendingReviewsGauge exposes the review queue depth as an
// observable gauge. count is polled on each metric collection. No-op when
// telemetry is disabled.
func RegisterPendingReviewsGauge(count func() int64) {
	if !Enabled() {
		return
	}
	m := Meter(transferScopeName)
	g, err := m.Int64ObservableGauge("radgate.reviews.pending",
		metric.WithDescription("Studies currently waiting for compliance review"),
	)
	if err != nil {
		return
	}
	_, _ = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(g, count())
		return nil
	}, g)
}

func routeAttrs(aeTitle string, extra ...attribute.KeyValue) metric.MeasurementOption {
	all := append([]attribute.KeyValue{attribute.String("radgate.route", aeTitle)}, extra...)
	return metric.WithAttributes(all...)
}

func (w *InstrumentedObserver) TransferReceived(aeTitle string) {
	w.received.Add(context.Background(), 1, routeAttrs(aeTitle))
	if w.inner != nil {
		w.inner.TransferReceived(aeTitle)
	}
}

func (w *InstrumentedObserver) TransferSucceeded(aeTitle string, transferBytes int64, transferFiles int) {
	attrs := routeAttrs(aeTitle, attribute.String("radgate.outcome", "success"))
	w.outcomes.Add(context.Background(), 1, attrs)
	w.bytes.Add(context.Background(), transferBytes, attrs)
	w.files.Add(context.Background(), int64(transferFiles), attrs)
	if w.inner != nil {
		w.inner.TransferSucceeded(aeTitle, transferBytes, transferFiles)
	}
}

func (w *InstrumentedObserver) TransferFailed(aeTitle string) {
	w.outcomes.Add(context.Background(), 1, routeAttrs(aeTitle, attribute.String("radgate.outcome", "failure")))
	if w.inner != nil {
		w.inner.TransferFailed(aeTitle)
	}
}
