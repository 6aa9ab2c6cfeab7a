// Package runtime executes admitted jobs. Tasks travel over NATS subjects
// derived from their task names; workers join a shared queue group so each
// task is delivered to exactly one worker.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
)

const (
	subjectPrefix = "jobs."
	queueGroup    = "vectoradmin-workers"
)

// Handler processes one dispatched task payload.
type Handler func(ctx context.Context, payload []byte) error

// Registry maps task names to their handlers. It is assembled once at
// startup and handed to the dispatcher; there is no runtime registration.
type Registry map[string]Handler

// Dispatcher publishes tasks and runs the subscriber side of the worker
// pool. It implements queue.Dispatcher.
type Dispatcher struct {
	nc       *nats.Conn
	registry Registry
	log      *zap.Logger
	subs     []*nats.Subscription
}

// NewDispatcher validates the registry and returns a dispatcher bound to
// the given NATS connection. Every task name must map to a non-nil handler.
func NewDispatcher(nc *nats.Conn, registry Registry, log *zap.Logger) (*Dispatcher, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	for name, handler := range registry {
		if name == "" {
			return nil, fmt.Errorf("registry contains an empty task name")
		}
		if handler == nil {
			return nil, fmt.Errorf("task %q has a nil handler", name)
		}
	}
	return &Dispatcher{nc: nc, registry: registry, log: log}, nil
}

// Subject maps a task name to its NATS subject. Task names use "/" as a
// path separator, which is not legal in subjects.
func Subject(taskName string) string {
	return subjectPrefix + strings.ReplaceAll(taskName, "/", ".")
}

// Publish sends a task to its subject. Unknown task names are rejected
// before they reach the wire so a typo surfaces at submission, not as a
// message that nothing consumes.
func (d *Dispatcher) Publish(_ context.Context, task queue.Task) error {
	if _, ok := d.registry[task.Name]; !ok {
		return fmt.Errorf("no handler registered for task %q", task.Name)
	}
	if err := d.nc.Publish(Subject(task.Name), task.Payload); err != nil {
		return fmt.Errorf("publish task %q: %w", task.Name, err)
	}
	d.log.Debug("task published", zap.String("task", task.Name))
	return nil
}

// Start subscribes a queue-group worker for every registered task. Handler
// errors are logged; the handlers themselves are responsible for recording
// job outcomes in the ledger.
func (d *Dispatcher) Start(ctx context.Context) error {
	for name, handler := range d.registry {
		name, handler := name, handler
		sub, err := d.nc.QueueSubscribe(Subject(name), queueGroup, func(msg *nats.Msg) {
			go func() {
				if err := handler(ctx, msg.Data); err != nil {
					d.log.Error("task handler failed",
						zap.String("task", name),
						zap.Error(err))
				}
			}()
		})
		if err != nil {
			return fmt.Errorf("subscribe task %q: %w", name, err)
		}
		d.subs = append(d.subs, sub)
	}
	d.log.Info("dispatcher started", zap.Int("tasks", len(d.registry)))
	return nil
}

// Close drains all subscriptions.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, sub := range d.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.subs = nil
	return firstErr
}
