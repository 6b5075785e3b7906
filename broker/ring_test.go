package broker

import "testing"

func TestWorkerRingFIFO(t *testing.T) {
	r := newWorkerRing(3)
	if !r.empty() {
		t.Fatalf("expected new ring to be empty")
	}
	for _, idx := range []int{0, 1, 2} {
		if !r.enqueue(idx) {
			t.Fatalf("enqueue(%d) failed unexpectedly", idx)
		}
	}
	if !r.full() {
		t.Fatalf("expected ring to be full after 3 enqueues of capacity 3")
	}
	if r.enqueue(3) {
		t.Fatalf("expected enqueue to fail when full")
	}

	for _, want := range []int{0, 1, 2} {
		got, ok := r.dequeue()
		if !ok || got != want {
			t.Fatalf("dequeue() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := r.dequeue(); ok {
		t.Fatalf("expected dequeue to fail when empty")
	}
}

func TestWorkerRingWraparound(t *testing.T) {
	r := newWorkerRing(2)
	r.enqueue(10)
	r.enqueue(20)
	if got, _ := r.dequeue(); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
	r.enqueue(30) // wraps tail back to index 0
	if got, _ := r.dequeue(); got != 20 {
		t.Fatalf("got %d, want 20", got)
	}
	if got, _ := r.dequeue(); got != 30 {
		t.Fatalf("got %d, want 30", got)
	}
}

func TestPendingRingFIFOAndBound(t *testing.T) {
	r := newPendingRing(2)
	a := &pendingEnvelope{clientID: []byte("a")}
	b := &pendingEnvelope{clientID: []byte("b")}
	c := &pendingEnvelope{clientID: []byte("c")}

	if !r.enqueue(a) || !r.enqueue(b) {
		t.Fatalf("expected first two enqueues to succeed")
	}
	if r.enqueue(c) {
		t.Fatalf("expected enqueue to fail once at capacity Q=2")
	}
	if r.len() != 2 {
		t.Fatalf("len() = %d, want 2", r.len())
	}

	got, ok := r.dequeue()
	if !ok || string(got.clientID) != "a" {
		t.Fatalf("expected FIFO order, got %+v", got)
	}
	got, ok = r.dequeue()
	if !ok || string(got.clientID) != "b" {
		t.Fatalf("expected FIFO order, got %+v", got)
	}
	if _, ok := r.dequeue(); ok {
		t.Fatalf("expected dequeue to fail when empty")
	}
}
