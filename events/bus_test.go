package events_test

import (
	"testing"

	"github.com/soliduschain/node/events"
)

func TestSubscribeAndPublishOrdering(t *testing.T) {
	bus := events.NewBus()
	var got []uint64
	bus.Subscribe(func(e events.BlockFinalized) { got = append(got, e.Height) })
	bus.Subscribe(func(e events.BlockFinalized) { got = append(got, e.Height*10) })

	bus.Publish(events.BlockFinalized{Height: 1})
	bus.Publish(events.BlockFinalized{Height: 2})

	want := []uint64{1, 10, 2, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPublishIgnoresUnrelatedTypes(t *testing.T) {
	bus := events.NewBus()
	called := false
	bus.Subscribe(func(e events.BlockFinalized) { called = true })
	bus.Publish(events.TransactionRemoved{Reason: "expired"})
	if called {
		t.Fatal("handler for BlockFinalized must not fire for TransactionRemoved")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := events.NewBus()
	bus.Subscribe(func(e events.BlockFinalized) { panic("boom") })
	secondCalled := false
	bus.Subscribe(func(e events.BlockFinalized) { secondCalled = true })
	bus.Publish(events.BlockFinalized{Height: 1})
	if !secondCalled {
		t.Fatal("a panicking handler must not prevent later handlers from running")
	}
}
