// Package services delivers checkup lifecycle events to the outside world.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/models"
)

type Sink interface {
	Publish(ctx context.Context, ev models.CheckupEvent) error
}

type SinkFunc func(ctx context.Context, ev models.CheckupEvent) error

func (f SinkFunc) Publish(ctx context.Context, ev models.CheckupEvent) error {
	return f(ctx, ev)
}

// Dispatcher fans events out to every sink. A failing sink is logged and
// never affects the caller or the other sinks.
type Dispatcher struct {
	sinks []Sink
	log   *zap.Logger
}

func NewDispatcher(log *zap.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, log: log}
}

func (d *Dispatcher) Add(s Sink) {
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) Publish(ctx context.Context, ev models.CheckupEvent) {
	d.log.Debug("checkup event",
		zap.String("type", string(ev.Type)),
		zap.String("checkupId", ev.CheckupID.Hex()),
		zap.String("status", string(ev.Status)))

	for _, s := range d.sinks {
		if err := d.deliver(ctx, s, ev); err != nil {
			d.log.Error("event sink failed",
				zap.String("type", string(ev.Type)),
				zap.String("checkupId", ev.CheckupID.Hex()),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Sink, ev models.CheckupEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Publish(ctx, ev)
}
