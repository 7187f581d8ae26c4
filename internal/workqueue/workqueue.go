package workqueue

import (
	"sync"

	"go.uber.org/zap"
)

// Callback is a completion scheduled on the work queue. The error argument
// carries the result of the operation that produced the completion.
type Callback func(err error)

// WorkQueue schedules completion callbacks onto a shared pool of workers.
// Callbacks queued from a single caller are executed in FIFO order relative
// to each other only as far as worker scheduling allows; callers that need
// strict sequencing must chain callbacks instead of queueing them in a batch.
type WorkQueue interface {
	Queue(cb Callback, err error)
}

type task struct {
	cb  Callback
	err error
}

// Pool is a channel-backed WorkQueue draining tasks with a fixed set of
// worker goroutines.
type Pool struct {
	poolConfig

	queue chan task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

var _ WorkQueue = (*Pool)(nil)

func New(opts ...Option) (*Pool, error) {
	cfg, err := newPoolConfig(opts)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		poolConfig: cfg,
		queue:      make(chan task, cfg.queueCapacity),
	}
	for i := 0; i < cfg.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		t.cb(t.err)
	}
}

func (p *Pool) Queue(cb Callback, err error) {
	if cb == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logger.Warn("callback dropped after stop", zap.Error(err))
		return
	}
	p.queue <- task{cb: cb, err: err}
}

// Stop closes the queue and joins the workers after already-queued callbacks
// have run. Queueing after Stop drops the callback.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()
	p.logger.Info("stopped")
}
