package feed

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesInitialThenPublished(t *testing.T) {
	var hub Hub[int]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, 1, 2)
	hub.Publish(3)

	for _, want := range []int{1, 2, 3} {
		if got := recv(t, ch); got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
}

func TestPublishDoesNotBlockOnSlowReader(t *testing.T) {
	var hub Hub[int]
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	for i := 0; i < 1000; i++ {
		if got := recv(t, ch); got != i {
			t.Fatalf("out of order: got %d, want %d", got, i)
		}
	}
}

func TestCancelClosesChannelAndUnsubscribes(t *testing.T) {
	var hub Hub[string]
	ctx, cancel := context.WithCancel(context.Background())
	ch := hub.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}

	deadline := time.Now().Add(time.Second)
	for hub.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed, len=%d", hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}
