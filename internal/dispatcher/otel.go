package dispatcher

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/hexrealm/projector/internal/dispatcher"

// instruments record dispatcher activity per concept.
type instruments struct {
	active  metric.Int64ObservableGauge
	backlog metric.Int64ObservableGauge
	emitted metric.Int64Counter
	skipped metric.Int64Counter
	dropped metric.Int64Counter
}

func newInstruments(m metric.Meter, observe metric.Callback) (instruments, error) {
	var (
		in  instruments
		err error
	)

	if in.active, err = m.Int64ObservableGauge("projection.subscriptions.active",
		metric.WithDescription("Current number of live projection subscriptions")); err != nil {
		return in, fmt.Errorf("creating active gauge: %w", err)
	}
	if in.backlog, err = m.Int64ObservableGauge("projection.stream.backlog",
		metric.WithDescription("Updates waiting in projection streams and callback buffers")); err != nil {
		return in, fmt.Errorf("creating backlog gauge: %w", err)
	}
	if _, err = m.RegisterCallback(observe, in.active, in.backlog); err != nil {
		return in, fmt.Errorf("registering subscription callback: %w", err)
	}

	if in.emitted, err = m.Int64Counter("projection.events.emitted",
		metric.WithDescription("Total domain events emitted")); err != nil {
		return in, fmt.Errorf("creating emitted counter: %w", err)
	}
	if in.skipped, err = m.Int64Counter("projection.events.skipped",
		metric.WithDescription("Total updates filtered out or with an incomplete join")); err != nil {
		return in, fmt.Errorf("creating skipped counter: %w", err)
	}
	if in.dropped, err = m.Int64Counter("projection.events.dropped",
		metric.WithDescription("Total events dropped due to full queue")); err != nil {
		return in, fmt.Errorf("creating dropped counter: %w", err)
	}
	return in, nil
}

func conceptAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("concept", name))
}
