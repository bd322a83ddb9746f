package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls how the dispatcher queues events ahead of the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events instead of blocking the sign-in path
	// when the queue is full.
	DropIfFull bool
}

// Dispatcher forwards audit events to a Sink from a single background
// goroutine so that slow sinks never hold a request open. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	logger     *zap.Logger
	dropIfFull bool

	queue    chan Event
	stop     chan struct{}
	finished chan struct{}

	dropped  atomic.Uint64
	shedding atomic.Bool
	stopped  atomic.Bool
	once     sync.Once
}

// NewDispatcher returns nil when auditing is disabled.
func NewDispatcher(cfg Config, sink Sink, logger *zap.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Flush whatever was queued before Close.
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

// deliver shields the loop from a panicking sink; one bad event must not
// stop auditing for the rest of the process.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit sink panicked",
				zap.String("event_type", ev.EventType),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.shedding.Store(false)
}

// Emit queues ev. With DropIfFull a full queue drops the event; otherwise
// Emit waits for room until ctx is done, and a cancelled wait also counts
// as a drop.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.drop(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-d.stop:
	case <-ctx.Done():
		d.drop(ev)
	}
}

// drop logs only the first loss of a burst; the counter carries the rest.
func (d *Dispatcher) drop(ev Event) {
	total := d.dropped.Add(1)
	if d.shedding.CompareAndSwap(false, true) {
		d.logger.Warn("audit queue full, dropping events",
			zap.String("event_type", ev.EventType),
			zap.Uint64("dropped_total", total),
		)
	}
}

// Close stops accepting events and waits until the queue is flushed.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
	})
	<-d.finished
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
