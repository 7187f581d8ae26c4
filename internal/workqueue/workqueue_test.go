package workqueue

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_InvalidConfig(t *testing.T) {
	_, err := New(WithNumWorkers(0))
	assert.Error(t, err)

	_, err = New(WithQueueCapacity(0))
	assert.Error(t, err)

	_, err = New(WithQueueCapacity(maxQueueCapacity + 1))
	assert.Error(t, err)

	_, err = New(WithLogger(nil))
	assert.Error(t, err)
}

func TestPool_QueueRunsCallbacks(t *testing.T) {
	p, err := New(WithNumWorkers(2), WithQueueCapacity(16))
	require.NoError(t, err)
	defer p.Stop()

	const numCallbacks = 100
	var wg sync.WaitGroup
	var ran atomic.Int64
	wantErr := errors.New("result")
	for i := 0; i < numCallbacks; i++ {
		wg.Add(1)
		p.Queue(func(err error) {
			defer wg.Done()
			assert.ErrorIs(t, err, wantErr)
			ran.Add(1)
		}, wantErr)
	}
	wg.Wait()
	assert.EqualValues(t, numCallbacks, ran.Load())
}

func TestPool_NilCallback(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Stop()

	p.Queue(nil, nil)
}

func TestPool_StopDrains(t *testing.T) {
	p, err := New(WithNumWorkers(1), WithQueueCapacity(16))
	require.NoError(t, err)

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		p.Queue(func(error) {
			ran.Add(1)
		}, nil)
	}
	p.Stop()
	assert.EqualValues(t, 10, ran.Load())

	// queueing after stop drops the callback
	p.Queue(func(error) {
		t.Error("should not run")
	}, nil)
	p.Stop()
}

func TestPool_QueueFromCallback(t *testing.T) {
	p, err := New(WithNumWorkers(1), WithQueueCapacity(16))
	require.NoError(t, err)
	defer p.Stop()

	done := make(chan struct{})
	p.Queue(func(error) {
		p.Queue(func(error) {
			close(done)
		}, nil)
	}, nil)
	<-done
}
