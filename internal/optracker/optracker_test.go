package optracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTracker_WaitWithoutOps(t *testing.T) {
	tr := New()
	assert.True(t, tr.Empty())

	called := false
	tr.WaitForOps(func() {
		called = true
	})
	assert.True(t, called)
}

func TestTracker_WaitJoinsPendingOps(t *testing.T) {
	tr := New()
	tr.StartOp()
	tr.StartOp()
	assert.False(t, tr.Empty())

	done := make(chan struct{})
	tr.WaitForOps(func() {
		close(done)
	})

	select {
	case <-done:
		t.Fatal("waiter fired with ops in flight")
	default:
	}

	tr.FinishOp()
	select {
	case <-done:
		t.Fatal("waiter fired with ops in flight")
	default:
	}

	tr.FinishOp()
	<-done
	assert.True(t, tr.Empty())
}

func TestTracker_ConcurrentOps(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		tr.StartOp()
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.FinishOp()
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	tr.WaitForOps(func() {
		close(done)
	})
	<-done
}

func TestTracker_FinishWithoutStartPanics(t *testing.T) {
	tr := New()
	assert.Panics(t, func() {
		tr.FinishOp()
	})
}
