package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("expected closed channel after Close")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64]()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}

func TestTypedBusCountsDrops(t *testing.T) {
	bus := NewTyped[int](WithBuffer(1))
	defer bus.Close()
	_ = bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)
	if got := bus.Dropped(); got != 2 {
		t.Fatalf("expected 2 drops, got %d", got)
	}
}

func TestTypedBusHandle(t *testing.T) {
	bus := NewTyped[int]()
	got := make(chan int, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := bus.Handle(ctx, func(v int) { got <- v })
	bus.Publish(7)
	select {
	case v := <-got:
		if v != 7 {
			t.Fatalf("expected 7 got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler goroutine did not stop")
	}
	bus.Close()
}
