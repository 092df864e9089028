package sol

import (
	"github.com/stretchr/testify/suite"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type WorkerPoolTestSuite struct {
	suite.Suite
}

func TestWorkerPoolSuite(t *testing.T) {
	suite.Run(t, new(WorkerPoolTestSuite))
}

func (s *WorkerPoolTestSuite) TestRunsJobsInParallel() {
	const workers = 4
	p := NewWorkerPool(workers)

	// All jobs meet at a barrier, which only opens if the pool really
	// runs them side by side.
	var barrier sync.WaitGroup
	barrier.Add(workers)
	done := make(chan struct{})
	go func() {
		for i := 0; i < workers; i++ {
			p.Submit(func() {
				barrier.Done()
				barrier.Wait()
			})
		}
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.Close()
	case <-time.After(3 * time.Second):
		s.FailNow("jobs were serialized")
	}
}

func (s *WorkerPoolTestSuite) TestWaitBlocksUntilIdle() {
	p := NewWorkerPool(3)
	var completed atomic.Int64
	numJobs := 16

	for i := 0; i < numJobs; i++ {
		p.Submit(func() {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
		})
	}
	p.Wait()
	s.Equal(int64(numJobs), completed.Load())

	// The pool stays usable, so Wait works as a barrier between batches.
	for i := 0; i < numJobs; i++ {
		p.Submit(func() {
			completed.Add(1)
		})
	}
	p.Wait()
	s.Equal(int64(2*numJobs), completed.Load())
	p.Close()
}

func (s *WorkerPoolTestSuite) TestSubmitFromJob() {
	p := NewWorkerPool(2)
	var completed atomic.Int64

	p.Submit(func() {
		p.Submit(func() {
			completed.Add(1)
		})
		completed.Add(1)
	})
	p.Wait()
	s.Equal(int64(2), completed.Load())
	p.Close()
}

func (s *WorkerPoolTestSuite) TestCloseDrainsQueuedJobs() {
	p := NewWorkerPool(2)
	var completed atomic.Int64
	numJobs := 32

	for i := 0; i < numJobs; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			completed.Add(1)
		})
	}
	// No Wait here: Close alone must let the queue drain before joining.
	p.Close()
	s.Equal(int64(numJobs), completed.Load())
}

func (s *WorkerPoolTestSuite) TestClosePropagatesJobPanic() {
	p := NewWorkerPool(2)
	var completed atomic.Int64

	p.Submit(func() {
		panic("job failed")
	})
	p.Submit(func() {
		completed.Add(1)
	})
	p.Wait()

	// The panic did not kill its worker, and Close re-raises it.
	s.Equal(int64(1), completed.Load())
	s.PanicsWithValue("job failed", p.Close)
}

func (s *WorkerPoolTestSuite) TestSubmitAfterCloseRejected() {
	p := NewWorkerPool(1)
	p.Close()
	s.Panics(func() {
		p.Submit(func() {})
	})
}

func (s *WorkerPoolTestSuite) TestRejectsNonPositiveSize() {
	s.Panics(func() {
		NewWorkerPool(0)
	})
	s.Panics(func() {
		NewWorkerPool(-3)
	})
}
