package handoff

import (
	"strconv"
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := New()
	if got := q.Drain(); got != nil {
		t.Fatalf("empty Drain = %q, want nil", got)
	}

	q.Push("1", "caption")
	q.Push()
	q.Push("3")
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	got := q.Drain()
	want := []string{"1", "caption", "3"}
	if len(got) != len(want) {
		t.Fatalf("Drain = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}

	if q.Len() != 0 {
		t.Errorf("Len after Drain = %d, want 0", q.Len())
	}
}

// TestQueueConcurrentOrder pushes from one goroutine while another drains and
// checks that the consumer observes every payload exactly once, in order.
func TestQueueConcurrentOrder(t *testing.T) {
	const total = 10000

	q := New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(strconv.Itoa(i))
		}
	}()

	next := 0
	for next < total {
		for _, p := range q.Drain() {
			if p != strconv.Itoa(next) {
				t.Fatalf("out of order: got %s, want %d", p, next)
			}
			next++
		}
	}
	wg.Wait()

	if got := q.Drain(); got != nil {
		t.Errorf("leftover items: %q", got)
	}
}
