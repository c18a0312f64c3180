// Package events publishes target state changes of a provisioning run to an
// external listener.
package events

import (
	"context"
	"time"

	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/dag"
)

// NodeEvent is the name of the event emitted for every state change.
const NodeEvent = "node"

// Event is one state change of a target.
type Event struct {
	RunID      string    `json:"runId"`
	Node       string    `json:"node"`
	Kind       string    `json:"kind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	Time       time.Time `json:"time"`
}

// Sink delivers events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// Observer adapts sink into a dag.Observer tagging every event with runID.
// Delivery failures are logged and never fail the build.
func Observer(sink Sink, runID string) dag.Observer {
	return func(ctx context.Context, t dag.Transition) {
		e := Event{
			RunID:      runID,
			Node:       t.Node,
			Kind:       t.Kind.String(),
			From:       t.From.String(),
			To:         t.To.String(),
			DurationMS: t.Duration.Milliseconds(),
			Time:       time.Now().UTC(),
		}
		if t.Err != nil {
			e.Error = t.Err.Error()
		}
		if err := sink.Emit(ctx, e); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to publish build event.", "node", t.Node, "error", err)
		}
	}
}
