package codify

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples sinks from the request path. A single worker
// drains the queue so sinks observe events in emission order.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	queue      chan AuditEvent
	drained    chan struct{}
	dropped    atomic.Uint64

	// mu guards closed so no Emit sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, size),
		drained:    make(chan struct{}),
	}
	go d.drain()
	return d
}

func (d *auditDispatcher) drain() {
	defer close(d.drained)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. With DropIfFull a full queue drops the event and counts
// it; otherwise Emit waits for room or for ctx to end.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	}
}

// Close stops accepting events and waits until everything already queued
// has reached the sink. Later calls return immediately.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.drained
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
