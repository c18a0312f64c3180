package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pyprovision/internal/dag"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestObserver_PublishesGraphTransitions(t *testing.T) {
	sink := &recordingSink{}
	g := dag.New(dag.WithObserver(Observer(sink, "run-1")))
	boom := errors.New("boom")
	_, err := g.Register(dag.Spec{Name: "fail", Kind: dag.Virtual, Action: func(context.Context, *dag.Build) error {
		return boom
	}})
	require.NoError(t, err)
	top, err := g.Register(dag.Spec{Name: "top", Kind: dag.Virtual, Deps: []dag.Ref{"fail"}})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), top)
	require.Error(t, err)

	require.Len(t, sink.events, 3)
	var got []string
	for _, e := range sink.events {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "virtual", e.Kind)
		assert.False(t, e.Time.IsZero())
		got = append(got, e.Node+":"+e.From+"->"+e.To)
	}
	assert.Equal(t, []string{
		"fail:pending->running",
		"fail:running->failed",
		"top:pending->failed",
	}, got)
	assert.Contains(t, sink.events[1].Error, "boom")
	assert.Contains(t, sink.events[2].Error, `dependency "fail" failed`)
}

func TestObserver_DeliveryFailureDoesNotFailBuild(t *testing.T) {
	sink := &recordingSink{err: ErrNotConnected}
	g := dag.New(dag.WithObserver(Observer(sink, "run-2")))
	ref, err := g.Register(dag.Spec{Name: "ok", Kind: dag.Virtual})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, dag.Succeeded, res.State)
	assert.Len(t, sink.events, 2)
}

func TestEventPayload(t *testing.T) {
	e := Event{
		RunID:      "r",
		Node:       "n",
		Kind:       "real",
		From:       "running",
		To:         "succeeded",
		DurationMS: 12,
		Time:       time.Date(2024, 12, 19, 0, 0, 0, 0, time.UTC),
	}

	p := e.payload()
	assert.Equal(t, "2024-12-19T00:00:00Z", p["time"])
	assert.Equal(t, int64(12), p["durationMs"])
	assert.NotContains(t, p, "error")

	e.Error = "boom"
	assert.Equal(t, "boom", e.payload()["error"])
}

func TestDialSocketIO_RejectsRelativeURL(t *testing.T) {
	_, err := DialSocketIO(context.Background(), "/socket.io", SocketIOOptions{})
	assert.ErrorContains(t, err, "must be absolute")
}
