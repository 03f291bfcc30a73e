package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Dispatcher runs collaborator deliveries on a small worker pool so the match
// lock is never held across I/O.
type Dispatcher struct {
	jobs    chan job
	wg      sync.WaitGroup
	pending sync.WaitGroup
	logger  logrus.FieldLogger
	timeout time.Duration
	onError func(name string, err error)

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers, queue int, logger logrus.FieldLogger, onError func(name string, err error)) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	d := &Dispatcher{
		jobs:    make(chan job, queue),
		logger:  logger,
		timeout: 5 * time.Second,
		onError: onError,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i + 1)
	}
	return d
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := j.run(ctx); err != nil {
			d.logger.WithFields(logrus.Fields{"worker": id, "event": j.name, "error": err}).Error("dispatch failed")
			d.onError(j.name, err)
		}
		cancel()
		d.pending.Done()
	}
}

// Enqueue never blocks the caller. A full queue hands the job to a goroutine.
func (d *Dispatcher) Enqueue(name string, run func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.WithField("event", name).Warn("dispatch after close dropped")
		return
	}
	d.pending.Add(1)
	j := job{name: name, run: run}
	select {
	case d.jobs <- j:
	default:
		d.logger.WithField("event", name).Warn("dispatch queue full")
		go func() { d.jobs <- j }()
	}
}

// Flush waits until every enqueued job has run.
func (d *Dispatcher) Flush() {
	d.pending.Wait()
}

// Close drains the queue and stops the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.pending.Wait()
	close(d.jobs)
	d.wg.Wait()
}
