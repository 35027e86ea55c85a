package bridge

import (
	"sync"
	"time"
)

// Event is a notification headed for connected clients.
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
}

// EventHandler processes events.
type EventHandler func(event *Event)

// eventBusBufferSize is the capacity of the async event channel.
const eventBusBufferSize = 256

// EventBus is an async pub/sub for client notifications. Publish never blocks:
// events go to a buffered channel drained by one worker goroutine, and are
// dropped when the buffer is full.
type EventBus struct {
	handlers []EventHandler
	mu       sync.RWMutex
	eventCh  chan *Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewEventBus creates a bus and starts its worker.
func NewEventBus() *EventBus {
	b := &EventBus{
		eventCh: make(chan *Event, eventBusBufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event. It reports false when the event was dropped
// because the bus is stopped or full.
func (b *EventBus) Publish(event *Event) bool {
	select {
	case <-b.stopCh:
		return false
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
		return true
	default:
		return false
	}
}

// Stop drains queued events and stops the worker. Safe to call multiple times.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

func (b *EventBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.safeCall(handler, event)
	}
}

// safeCall keeps a panicking handler from killing the worker.
func (b *EventBus) safeCall(handler EventHandler, event *Event) {
	defer func() {
		recover() //nolint:errcheck // handlers log their own failures
	}()
	handler(event)
}
