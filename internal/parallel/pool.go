package parallel

import (
	"io"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"
)

type batch struct {
	fn         func(start, end int)
	start, end int
	wg         *sync.WaitGroup
}

// ThreadPool runs data-partitioned batches on a fixed set of workers. The
// goroutine calling ParallelFor takes part in the work, so a pool of n
// threads keeps n-1 background goroutines.
type ThreadPool struct {
	mu      sync.Mutex
	threads int
	tasks   chan batch
	done    chan struct{}
	workers sync.WaitGroup
	logger  *log.Logger
}

// NewThreadPool starts a pool with the given thread count. Non-positive
// values select runtime.NumCPU.
func NewThreadPool(threads int, logger *log.Logger) *ThreadPool {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &ThreadPool{logger: logger}
	p.start(threads)
	return p
}

func (p *ThreadPool) start(threads int) {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	p.threads = threads
	p.tasks = make(chan batch, threads*4)
	p.done = make(chan struct{})

	for i := 0; i < threads-1; i++ {
		p.workers.Add(1)
		go p.worker(p.tasks, p.done)
	}
	p.logger.Info("thread pool started", "threads", threads)
}

func (p *ThreadPool) worker(tasks <-chan batch, done <-chan struct{}) {
	defer p.workers.Done()
	for {
		select {
		case b := <-tasks:
			b.fn(b.start, b.end)
			b.wg.Done()
		case <-done:
			return
		}
	}
}

func (p *ThreadPool) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threads
}

// Resize replaces the workers. It must not be called while a ParallelFor is
// running.
func (p *ThreadPool) Resize(threads int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	p.start(threads)
	p.logger.Info("thread pool resized", "threads", p.threads)
}

// Stop shuts the workers down. Subsequent ParallelFor calls run serially on
// the caller.
func (p *ThreadPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	p.threads = 1
	p.logger.Info("thread pool stopped")
}

func (p *ThreadPool) stop() {
	if p.done == nil {
		return
	}
	close(p.done)
	p.workers.Wait()
	p.done = nil
}

// ParallelFor executes fn over [0, n) split into contiguous batches of at
// least minBatch elements and returns once every batch has finished.
func (p *ThreadPool) ParallelFor(n, minBatch int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if minBatch < 1 {
		minBatch = 1
	}

	workers := p.threads
	if p.done == nil || workers <= 1 || n <= minBatch {
		fn(0, n)
		return
	}

	batches := n / minBatch
	if batches > workers*4 {
		batches = workers * 4
	}
	if batches < 2 {
		fn(0, n)
		return
	}

	chunkSize := (n + batches - 1) / batches

	var wg sync.WaitGroup
	wg.Add(batches)

	var own []batch
	for b := 0; b < batches; b++ {
		start := b * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			wg.Done()
			continue
		}

		task := batch{fn: fn, start: start, end: end, wg: &wg}
		select {
		case p.tasks <- task:
		default:
			own = append(own, task)
		}
	}

	for _, task := range own {
		task.fn(task.start, task.end)
		task.wg.Done()
	}

	// Help drain the queue instead of idling.
	for {
		select {
		case task := <-p.tasks:
			task.fn(task.start, task.end)
			task.wg.Done()
			continue
		default:
		}
		break
	}

	wg.Wait()
}
