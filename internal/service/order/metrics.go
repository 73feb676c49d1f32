package order

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	created         metric.Int64Counter
	transitions     metric.Int64Counter
	cancellations   metric.Int64Counter
	conflicts       metric.Int64Counter
	publishFailures metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter("github.com/Additional-Code/ordertrack/service/order")

	var errs [5]error
	ins := &instruments{}
	ins.created, errs[0] = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders accepted by the lifecycle engine."))
	ins.transitions, errs[1] = meter.Int64Counter("orders.transitions",
		metric.WithDescription("Accepted forward status transitions."))
	ins.cancellations, errs[2] = meter.Int64Counter("orders.cancellations",
		metric.WithDescription("Accepted cancellations."))
	ins.conflicts, errs[3] = meter.Int64Counter("orders.conflicts",
		metric.WithDescription("Conditional updates lost to a concurrent writer."))
	ins.publishFailures, errs[4] = meter.Int64Counter("orders.events.publish_failures",
		metric.WithDescription("Lifecycle events that could not be handed to the bus."))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return ins, nil
}
