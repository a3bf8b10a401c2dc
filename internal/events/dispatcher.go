package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config sizes the event queue. With DropIfFull unset, Emit waits for
// queue space until its context ends.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands events to a sink from a single background goroutine, so
// sinks see events in emit order. A nil *Dispatcher discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	dropIfFull bool
	onDrop     func(Event)

	// mu guards shut and the close of queue.
	mu       sync.RWMutex
	shut     bool
	finished chan struct{}
	dropped  atomic.Uint64
}

// NewDispatcher returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		dropIfFull: cfg.DropIfFull,
		finished:   make(chan struct{}),
	}
	go d.deliver()
	return d
}

// OnDrop sets the overflow callback. Call it before the first Emit.
func (d *Dispatcher) OnDrop(fn func(Event)) {
	if d != nil {
		d.onDrop = fn
	}
}

func (d *Dispatcher) deliver() {
	defer close(d.finished)
	for ev := range d.queue {
		d.sink.Emit(context.Background(), ev)
	}
}

// Emit queues ev. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.shut {
		return
	}
	if !d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-ctx.Done():
		}
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop(ev)
		}
	}
}

// Close stops intake and returns once every queued event reached the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.shut {
		d.shut = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.finished
}

// Dropped counts events lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
