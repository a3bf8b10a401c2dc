package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Name: "user.created"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Name: "session.created"})
	}
	d.Close()
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 events delivered, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	var dropped atomic.Int64
	d.OnDrop(func(Event) { dropped.Add(1) })

	// First event is taken by the worker and blocks on the gate; the second
	// fills the buffer; the rest are dropped.
	d.Emit(context.Background(), Event{Name: "a"})
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Name: "b"})
	}

	if d.Dropped() != 4 || dropped.Load() != 4 {
		t.Fatalf("expected 4 drops, got %d (callback %d)", d.Dropped(), dropped.Load())
	}
	close(sink.gate)
	d.Close()
}

func TestDispatcherEmitAfterCloseIsDiscarded(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{Name: "a"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Name: "b"})
	if got := sink.count.Load(); got != 1 {
		t.Fatalf("expected 1 event delivered, got %d", got)
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{Name: "a"})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{Name: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	returned := make(chan struct{})
	go func() {
		d.Emit(ctx, Event{Name: "c"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Emit did not return after its context ended")
	}
	if d.Dropped() != 0 {
		t.Fatalf("blocking mode must not count drops, got %d", d.Dropped())
	}
	close(sink.gate)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{Name: "user.created", ActorID: "u1", Payload: map[string]string{"name": "x"}})

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid json line: %v", err)
	}
	if decoded["event"] != "user.created" || decoded["actorId"] != "u1" {
		t.Fatalf("unexpected line %v", decoded)
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))
	sink.Emit(context.Background(), Event{Name: "session.deleted", UserID: "u1"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["event"] != "session.deleted" {
		t.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}
