package ledger

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLanes_SameKeyRunsInOrder(t *testing.T) {
	q := newLanes()
	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	q.run("tent", func() {
		<-release
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	q.run("tent", func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})
	close(release)
	q.wait()

	if !reflect.DeepEqual(order, []int{1, 2}) {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestLanes_DifferentKeysDoNotBlock(t *testing.T) {
	q := newLanes()
	block := make(chan struct{})
	done := make(chan struct{})

	q.run("tent", func() { <-block })
	q.run("stove", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stove write waited on tent write")
	}
	close(block)
	q.wait()
}

func TestDebouncer_ResetsInsteadOfStacking(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32

	for i := 1; i <= 3; i++ {
		v := int32(i)
		d.schedule("tent", func() {
			calls.Add(1)
			last.Store(v)
		})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 3 {
		t.Fatalf("last value = %d, want 3", got)
	}
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	d := newDebouncer(time.Hour)
	var ran []string

	d.schedule("b", func() { ran = append(ran, "b") })
	d.schedule("a", func() { ran = append(ran, "a") })
	d.schedule("c", func() { ran = append(ran, "c") })
	if !d.cancel("c") {
		t.Fatal("cancel(c) = false, want true")
	}
	if d.cancel("missing") {
		t.Fatal("cancel(missing) = true, want false")
	}
	d.flushAll()

	if !reflect.DeepEqual(ran, []string{"a", "b"}) {
		t.Fatalf("ran = %v, want [a b]", ran)
	}
}
