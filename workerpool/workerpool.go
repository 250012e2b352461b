// Package workerpool is a fixed-size goroutine pool serving tasks in FIFO
// order. Each submitted task gets a Future carrying its result.
//
// Closing the pool never leaves a future unresolved: tasks that had not
// started are resolved with ErrCancelled, running tasks are allowed to
// finish, and Close returns once every worker goroutine has exited.
package workerpool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/marben/adaptive_mandel/logger"
)

var (
	// ErrClosed is returned by Submit once the pool is closing.
	ErrClosed = errors.New("workerpool: pool is closed")
	// ErrCancelled resolves futures of tasks dropped by Close before they started.
	ErrCancelled = errors.New("workerpool: task cancelled before it started")
)

var (
	tasksSubmittedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workerpool_tasks_submitted_total",
		Help: "The total number of tasks submitted to the pool.",
	}, []string{"pool"})

	tasksFinishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workerpool_tasks_finished_total",
		Help: "The total number of tasks resolved, by outcome.",
	}, []string{"pool", "outcome"})

	queuedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workerpool_queued_tasks",
		Help: "Tasks waiting for a worker.",
	}, []string{"pool"})

	busyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "workerpool_busy_workers",
		Help: "Workers currently executing a task.",
	}, []string{"pool"})

	taskDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workerpool_task_duration_seconds",
		Help:    "Time spent executing a task.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"pool"})
)

// Task is a unit of work run by the pool.
type Task func() (any, error)

// Future is the handle of a submitted task.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(val any, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Done is closed once the task has been resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task is resolved and returns its result.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.val, f.err
}

type job struct {
	task   Task
	future *Future
}

type Option func(*Pool)

// WithLogger sets the logger used for panics and lifecycle events.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithName labels the pool's metrics.
func WithName(name string) Option {
	return func(p *Pool) {
		p.name = name
	}
}

// Pool runs tasks on a fixed number of goroutines.
type Pool struct {
	name    string
	logger  logger.Logger
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool

	busy      atomic.Int32
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a pool of workers goroutines; workers <= 0 means runtime.NumCPU().
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{
		name:    "default",
		logger:  logger.NewNoopLogger(),
		workers: workers,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	p.logger.Debug("worker pool started", zap.String("pool", p.name), zap.Int("workers", workers))
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Busy returns the number of workers executing a task.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Submit queues task behind every task submitted before it.
func (p *Pool) Submit(task Task) (*Future, error) {
	f := newFuture()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.queue = append(p.queue, job{task: task, future: f})
	p.mu.Unlock()
	p.cond.Signal()

	tasksSubmittedCounter.WithLabelValues(p.name).Inc()
	queuedGauge.WithLabelValues(p.name).Inc()
	return f, nil
}

// Close stops the pool. Queued tasks are cancelled with ErrCancelled, running
// tasks finish, and Close returns when all workers have exited. Calling Close
// more than once is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		pending := p.queue
		p.queue = nil
		p.mu.Unlock()
		p.cond.Broadcast()

		for _, j := range pending {
			j.future.resolve(nil, ErrCancelled)
			tasksFinishedCounter.WithLabelValues(p.name, "cancelled").Inc()
		}
		queuedGauge.WithLabelValues(p.name).Sub(float64(len(pending)))

		p.wg.Wait()
		p.logger.Debug("worker pool stopped", zap.String("pool", p.name), zap.Int("cancelled", len(pending)))
	})
}

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return job{}, false
	}

	j := p.queue[0]
	p.queue[0] = job{}
	p.queue = p.queue[1:]
	return j, true
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		j, ok := p.next()
		if !ok {
			return
		}
		queuedGauge.WithLabelValues(p.name).Dec()
		p.execute(j)
	}
}

func (p *Pool) execute(j job) {
	p.busy.Add(1)
	busyGauge.WithLabelValues(p.name).Inc()
	defer func() {
		p.busy.Add(-1)
		busyGauge.WithLabelValues(p.name).Dec()
	}()

	start := time.Now()
	var (
		val any
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		val, err = j.task()
	})
	if r := pc.Recovered(); r != nil {
		err = fmt.Errorf("task panicked: %w", r.AsError())
		p.logger.Error("recovered task panic", zap.String("pool", p.name), zap.Error(err))
	}
	taskDurationHistogram.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tasksFinishedCounter.WithLabelValues(p.name, outcome).Inc()

	j.future.resolve(val, err)
}
