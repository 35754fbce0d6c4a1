package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sandeepkv93/remindd/internal/scheduler"
)

// Sink shows a notification to the user.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// EngineDispatcher keeps pending notifications on a scheduler.Engine and
// hands fired alarms to a Sink.
type EngineDispatcher struct {
	engine *scheduler.Engine
	sink   Sink
	logger *slog.Logger
}

func NewEngineDispatcher(engine *scheduler.Engine, sink Sink, logger *slog.Logger) *EngineDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineDispatcher{engine: engine, sink: sink, logger: logger}
}

func (d *EngineDispatcher) Schedule(_ context.Context, n Notification) error {
	payload, err := n.Payload().Encode()
	if err != nil {
		return err
	}
	return d.engine.Schedule(scheduler.Alarm{
		ID:      n.TaskID,
		TaskID:  n.TaskID,
		Title:   n.Title,
		Body:    n.Body,
		FireAt:  n.FireAt,
		Repeat:  n.Repeat,
		Payload: payload,
	})
}

func (d *EngineDispatcher) Cancel(_ context.Context, taskID string) error {
	d.engine.Cancel(taskID)
	return nil
}

func (d *EngineDispatcher) ShowImmediate(ctx context.Context, n Notification) error {
	return d.sink.Deliver(ctx, n)
}

// Run delivers fired alarms until ctx is done or the engine stops.
func (d *EngineDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alarm, ok := <-d.engine.C():
			if !ok {
				return nil
			}
			n, err := fromAlarm(alarm)
			if err != nil {
				d.logger.Warn("dropping alarm with bad payload", "task_id", alarm.TaskID, "error", err)
				continue
			}
			if err := d.sink.Deliver(ctx, n); err != nil {
				d.logger.Warn("notification delivery failed", "task_id", n.TaskID, "error", err)
			}
		}
	}
}

// fromAlarm rebuilds the notification of a fired alarm. The occurrence is
// derived from the fire time so re-armed alarms report the right one.
func fromAlarm(a scheduler.Alarm) (Notification, error) {
	p, err := DecodePayload(a.Payload)
	if err != nil {
		return Notification{}, fmt.Errorf("alarm %s: %w", a.ID, err)
	}
	lead := time.Duration(p.LeadMinutes) * time.Minute
	return Notification{
		TaskID:       p.TaskID,
		Title:        a.Title,
		Body:         a.Body,
		Kind:         p.Kind,
		FireAt:       a.FireAt,
		OccurrenceAt: a.FireAt.Add(lead),
		Repeat:       a.Repeat,
		Lead:         lead,
	}, nil
}
