package concurrency

import (
	"testing"
	"time"
)

func TestSafeGoRecoversPanic(t *testing.T) {
	got := make(chan interface{}, 1)
	SafeGo("test", func() { panic("boom") }, func(r interface{}) { got <- r })

	select {
	case r := <-got:
		if r != "boom" {
			t.Errorf("Expected panic value boom, got %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onPanic was not called")
	}
}

func TestSafeGoRunsFunction(t *testing.T) {
	done := make(chan struct{})
	SafeGo("test", func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("function did not run")
	}
}
