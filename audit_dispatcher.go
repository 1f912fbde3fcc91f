package goToken

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher hands events to the sink on a single worker goroutine so
// token calls never wait on sink I/O unless configured to.
type auditDispatcher struct {
	sink    AuditSink
	queue   chan AuditEvent
	block   bool
	stop    chan struct{}
	stopped chan struct{}
	dropped atomic.Uint64
	once    sync.Once
	log     zerolog.Logger
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:    sink,
		queue:   make(chan AuditEvent, cfg.BufferSize),
		block:   !cfg.DropIfFull,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log.With().Str("component", "audit").Logger(),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("event_type", ev.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit waits for space, ctx or Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	select {
	case <-d.stop:
		return
	default:
	}

	if !d.block {
		select {
		case d.queue <- event:
		default:
			if d.dropped.Add(1) == 1 {
				d.log.Warn().Msg("audit buffer full, dropping events")
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close drains queued events into the sink and stops the worker. It is idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		close(d.stop)
		<-d.stopped
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
