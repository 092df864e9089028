package sol

import "sync"

// WorkerPool runs submitted jobs on a fixed set of worker goroutines.
//
// Jobs queue without bound, so Submit never blocks. Wait blocks until
// every submitted job has finished, which makes the pool reusable as a
// barrier between batches. A job that panics does not kill its worker:
// the first panic value is kept and re-raised by Close, after all
// workers have been joined.
type WorkerPool struct {
	mu      sync.Mutex
	ready   sync.Cond // a job is queued, or the pool is closing
	idle    sync.Cond // no job is queued or running
	queue   []func()
	pending int // queued plus running jobs
	closed  bool
	failure any // first job panic, re-raised by Close
	workers sync.WaitGroup
}

// NewWorkerPool starts a pool of size workers. It panics if size is not
// positive.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		panic("sol.WorkerPool: size must be positive")
	}
	p := &WorkerPool{}
	p.ready.L = &p.mu
	p.idle.L = &p.mu
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Submit queues job for execution by some worker. It panics if the pool
// is already closed.
func (p *WorkerPool) Submit(job func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("sol.WorkerPool: Submit on a closed pool")
	}
	p.pending++
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.ready.Signal()
}

// Wait blocks until every job submitted so far has finished. Jobs
// submitted while Wait blocks extend the wait.
func (p *WorkerPool) Wait() {
	p.mu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close lets the workers drain the queue, joins them, and re-raises the
// first job panic if there was one. No Submit may follow or overlap a
// Close, and Close must be called exactly once.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.ready.Broadcast()
	p.workers.Wait()
	if p.failure != nil {
		panic(p.failure)
	}
}

func (p *WorkerPool) worker() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.ready.Wait()
		}
		if len(p.queue) == 0 {
			// Closed and drained.
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()
		p.run(job)
	}
}

// run executes one job and counts it finished even if it panics.
func (p *WorkerPool) run(job func()) {
	defer p.finish()
	job()
}

func (p *WorkerPool) finish() {
	r := recover()
	p.mu.Lock()
	if r != nil && p.failure == nil {
		p.failure = r
	}
	p.pending--
	idle := p.pending == 0
	p.mu.Unlock()
	if idle {
		p.idle.Broadcast()
	}
}
