package notify

import (
	"sync"
	"time"

	"github.com/nerrad567/casement-core/internal/infrastructure/config"
	"github.com/nerrad567/casement-core/internal/infrastructure/logging"
)

// defaultQueueSize bounds the pending queue when config leaves it unset.
const defaultQueueSize = 32

// Sink delivers one notification to an external channel. Deliver is
// called from the dispatcher's worker goroutine and may block up to the
// configured timeout.
type Sink interface {
	Name() string
	Deliver(text string, timeout time.Duration) error
}

// Dispatcher fans notifications out to its sinks through a bounded
// queue serviced by a single worker goroutine.
//
// Notify never blocks: when the queue is full the notification is
// dropped and counted, so a slow webhook or broker provably cannot
// stall the relay's dispatch path.
type Dispatcher struct {
	queue   chan string
	sinks   []Sink
	timeout time.Duration
	logger  *logging.Logger

	dropped uint64
	mu      sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given sinks.
func NewDispatcher(cfg config.NotifyConfig, logger *logging.Logger, sinks ...Sink) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Dispatcher{
		queue:   make(chan string, size),
		sinks:   sinks,
		timeout: cfg.GetTimeout(),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Close stops accepting notifications, drains the queue, and waits for
// the worker to finish in-flight deliveries.
func (d *Dispatcher) Close() {
	close(d.done)
	d.wg.Wait()
}

// Notify queues a notification for delivery. Non-blocking: returns
// immediately whether or not the queue had room.
func (d *Dispatcher) Notify(text string) {
	select {
	case d.queue <- text:
	default:
		d.mu.Lock()
		d.dropped++
		dropped := d.dropped
		d.mu.Unlock()
		d.logger.Warn("notification queue full, dropping", "dropped_total", dropped)
	}
}

// Dropped returns the number of notifications discarded because the
// queue was full.
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case text := <-d.queue:
			d.deliver(text)
		case <-d.done:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case text := <-d.queue:
					d.deliver(text)
				default:
					return
				}
			}
		}
	}
}

// deliver pushes one notification to every sink. A sink failure is
// logged and never propagated; delivery is best effort per sink.
func (d *Dispatcher) deliver(text string) {
	for _, sink := range d.sinks {
		if err := sink.Deliver(text, d.timeout); err != nil {
			d.logger.Warn("notification delivery failed", "sink", sink.Name(), "error", err)
		}
	}
}
