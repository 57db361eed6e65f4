package notifier

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/models"
	"auction-engine/utils"
)

// Notifier receives auction events. Notify must never block the caller.
type Notifier interface {
	Notify(event models.AuctionEvent)
}

// Publisher delivers one event to an external sink (NATS, Redis, logs).
type Publisher interface {
	Publish(ctx context.Context, event models.AuctionEvent) error
	Close() error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(models.AuctionEvent) {}

const defaultPublishTimeout = 5 * time.Second

// Dispatcher is a best-effort Notifier: events are queued and handed to the
// publisher by a background worker. When the queue is full the event is dropped.
type Dispatcher struct {
	publisher Publisher
	queue     chan models.AuctionEvent
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a dispatcher with a queue of size buffer.
func NewDispatcher(publisher Publisher, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan models.AuctionEvent, buffer),
		timeout:   defaultPublishTimeout,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Notify enqueues event without waiting.
func (d *Dispatcher) Notify(event models.AuctionEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		utils.Warn("notifier: queue full, dropping event", map[string]any{
			"event_id":   event.EventID,
			"type":       event.Type,
			"auction_id": event.AuctionID,
		})
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.publisher.Publish(ctx, event); err != nil {
			utils.Error("notifier: failed to publish event", map[string]any{
				"event_id":   event.EventID,
				"type":       event.Type,
				"auction_id": event.AuctionID,
				"error":      err.Error(),
			})
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	return d.publisher.Close()
}
