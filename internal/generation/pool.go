package generation

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	reporterrors "github.com/conneroisu/reports/internal/errors"
)

// task is one queued generation. done is buffered so a worker never blocks
// on a caller that has stopped waiting.
type task struct {
	ctx  context.Context
	run  func(ctx context.Context) (*Result, error)
	done chan outcome
}

type outcome struct {
	result *Result
	err    error
}

// workerPool runs tasks on a fixed number of workers. A weighted semaphore of
// the same capacity gates the work itself; it is acquired after a task starts
// and released when the task returns.
type workerPool struct {
	tasks   chan *task
	permits *semaphore.Weighted
	size    int

	// active is guarded by activeMu so onActive observes counts in order.
	active   int
	activeMu sync.Mutex
	onActive func(n int)

	// queueMu orders enqueues against the final drain: submit holds it
	// shared while sending, close holds it exclusively while draining.
	queueMu sync.RWMutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  chan struct{}
	once    sync.Once
}

func newWorkerPool(size int, onActive func(n int)) *workerPool {
	if size < 1 {
		size = 1
	}
	if onActive == nil {
		onActive = func(int) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool{
		tasks:    make(chan *task, size*4),
		permits:  semaphore.NewWeighted(int64(size)),
		size:     size,
		onActive: onActive,
		cancel:   cancel,
		closed:   make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	return p
}

// submit queues t. It fails when t.ctx ends before a queue slot frees up or
// the pool is closed.
func (p *workerPool) submit(t *task) error {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()

	select {
	case <-p.closed:
		return errShutdown()
	default:
	}

	select {
	case p.tasks <- t:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	case <-p.closed:
		return errShutdown()
	}
}

func (p *workerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			t.done <- p.execute(t)
		}
	}
}

func (p *workerPool) execute(t *task) outcome {
	if err := p.permits.Acquire(t.ctx, 1); err != nil {
		return outcome{err: reporterrors.NewInterruptedError(err)}
	}
	p.adjustActive(1)
	defer func() {
		p.adjustActive(-1)
		p.permits.Release(1)
	}()

	result, err := t.run(t.ctx)

	return outcome{result: result, err: err}
}

func (p *workerPool) adjustActive(delta int) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()

	p.active += delta
	p.onActive(p.active)
}

// activeCount returns the number of tasks holding a permit.
func (p *workerPool) activeCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()

	return p.active
}

// close stops the workers after their current task and fails the tasks
// still queued. Every task accepted by submit gets an outcome.
func (p *workerPool) close() {
	p.once.Do(func() {
		close(p.closed)
		p.cancel()
	})
	p.wg.Wait()

	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	for {
		select {
		case t := <-p.tasks:
			t.done <- outcome{err: errShutdown()}
		default:
			return
		}
	}
}

func errShutdown() error {
	return reporterrors.NewGenerationError(reporterrors.CodeInterrupted, "generation service is shut down", nil)
}
