package queue

import (
	"testing"
	"time"
)

func TestNewRejectsZeroCapacity(t *testing.T) {
	if _, err := New[int](0); err == nil {
		t.Fatal("New(0) = nil error, want precondition error")
	}
}

func TestPushPopFIFOOrder(t *testing.T) {
	q, err := New[int](4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		q.Push(i)
	}
	for i := 0; i < 4; i++ {
		if got := q.Pop(); got != i {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
}

func TestTryPopOnEmpty(t *testing.T) {
	q, _ := New[int](2)
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop on empty queue returned ok=true")
	}
}

func TestPushBlocksUntilSpace(t *testing.T) {
	q, _ := New[int](1)
	q.Push(1)

	done := make(chan struct{})
	go func() {
		q.Push(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Push returned before queue had room")
	case <-time.After(50 * time.Millisecond):
	}

	q.Pop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Pop freed space")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q, _ := New[int](2)

	result := make(chan int, 1)
	go func() { result <- q.Pop() }()

	select {
	case <-result:
		t.Fatal("Pop returned before any value was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(7)
	select {
	case v := <-result:
		if v != 7 {
			t.Fatalf("Pop() = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestEmptyAndFull(t *testing.T) {
	q, _ := New[int](2)
	if !q.Empty() {
		t.Fatal("new queue should be Empty")
	}
	q.Push(1)
	q.Push(2)
	if !q.Full() {
		t.Fatal("queue at capacity should be Full")
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}
