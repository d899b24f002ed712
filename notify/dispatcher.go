// Package notify fans run events out to in-process subscribers and external sinks.
package notify

import (
	"sync"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

// Sink receives every published notification on the dispatcher's worker goroutine.
type Sink interface {
	Broadcast(notification *types.Notification)
}

const defaultQueueSize = 256

// Dispatcher implements orchestrator.Publisher. Publish never blocks:
// slow subscribers and a full sink queue drop events.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[int]chan types.Notification
	nextID int
	sinks  []Sink

	queue     chan types.Notification
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		subs:  make(map[int]chan types.Notification),
		sinks: sinks,
		queue: make(chan types.Notification, defaultQueueSize),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

// AddSink registers an extra sink.
func (d *Dispatcher) AddSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Subscribe returns a buffered channel of notifications and a function that unsubscribes and closes it.
func (d *Dispatcher) Subscribe(buffer int) (<-chan types.Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan types.Notification, buffer)
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = ch
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
			close(ch)
		})
	}
}

func (d *Dispatcher) Publish(n types.Notification) {
	d.mu.RLock()
	for _, ch := range d.subs {
		select {
		case ch <- n:
		default:
		}
	}
	hasSinks := len(d.sinks) > 0
	d.mu.RUnlock()

	if !hasSinks {
		return
	}
	select {
	case <-d.done:
	case d.queue <- n:
	default:
		tool.DefaultLogger.Debugf("[Notify] Sink queue full, dropping %s", n.Type)
	}
}

func (d *Dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case n := <-d.queue:
			d.mu.RLock()
			sinks := append([]Sink(nil), d.sinks...)
			d.mu.RUnlock()
			for _, sink := range sinks {
				sink.Broadcast(&n)
			}
		}
	}
}

// Close stops sink delivery. Subscribers keep their channels until they unsubscribe.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}
