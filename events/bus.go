// Package events implements the node's typed event bus: the sole channel
// through which the Processor, Synchronizer, Forger, and Pool observe each
// other's state transitions. It replaces ad hoc global emitters and
// cyclic back-references with one small, closed set of event types (see
// events.go) and synchronous, ordered delivery.
package events

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/soliduschain/node/log"
)

var logger = log.Component("events")

// Bus dispatches published events to every handler subscribed to that
// event's concrete type. Handlers run synchronously, in subscription order,
// on the publisher's goroutine — matching spec §5's single-threaded
// cooperative scheduler: "Events emitted by the Processor are observed by
// subscribers in the same relative order as block application."
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]reflect.Value
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]reflect.Value)}
}

// Subscribe registers handler, a func(EventType) value, for its parameter's
// concrete event type. Panics if handler is not a single-argument, no-return
// function — a programmer error, not a runtime condition.
func (b *Bus) Subscribe(handler any) {
	hv := reflect.ValueOf(handler)
	ht := hv.Type()
	if ht.Kind() != reflect.Func || ht.NumIn() != 1 || ht.NumOut() != 0 {
		panic(fmt.Sprintf("events: Subscribe requires func(EventType), got %T", handler))
	}
	evType := ht.In(0)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[evType] = append(b.handlers[evType], hv)
}

// Publish dispatches event to every handler subscribed to its concrete
// type. A handler panic is recovered and logged so one bad subscriber never
// takes down the publisher (the Processor, typically).
func (b *Bus) Publish(event any) {
	evType := reflect.TypeOf(event)
	b.mu.RLock()
	hs := append([]reflect.Value(nil), b.handlers[evType]...)
	b.mu.RUnlock()
	for _, h := range hs {
		b.invoke(h, event)
	}
}

func (b *Bus) invoke(h reflect.Value, event any) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("event", fmt.Sprintf("%T", event)).WithField("panic", r).Error("event handler panicked")
		}
	}()
	h.Call([]reflect.Value{reflect.ValueOf(event)})
}
