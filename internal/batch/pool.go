package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"igfeed/pkg/logger"
)

// ErrPoolClosed is returned by Submit once the pool is shutting down
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Job is a single fetch task, identified by a key such as a username
type Job struct {
	Key string
}

// Result is the outcome of a Job
type Result[T any] struct {
	Key      string
	Value    T
	Err      error
	Skipped  bool
	Duration time.Duration
}

// FetchFunc produces the value for a key
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Sink keeps fetched values. Keys it already has are skipped without fetching.
type Sink interface {
	Has(key string) bool
	Put(key string, v interface{}) error
}

// Pool runs fetch jobs on a fixed number of workers
type Pool[T any] struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result[T]
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetch       FetchFunc[T]
	sink        Sink
	logger      logger.Logger
}

// NewPool creates a pool. sink may be nil, in which case every key is fetched and nothing is kept.
func NewPool[T any](ctx context.Context, numWorkers int, fetch FetchFunc[T], sink Sink, log logger.Logger) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result[T], numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetch:       fetch,
		sink:        sink,
		logger:      log,
	}
}

// Start launches the workers
func (p *Pool[T]) Start() {
	p.logger.DebugWithFields("starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, waits for queued jobs to finish and closes Results
func (p *Pool[T]) Stop() {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.resultQueue)
	p.cancel()

	p.logger.Debug("worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (p *Pool[T]) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Results returns the channel results are delivered on; it must be drained
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.resultQueue
}

// QueueSize returns the number of jobs waiting for a worker
func (p *Pool[T]) QueueSize() int {
	return len(p.jobQueue)
}

// Workers returns the number of workers
func (p *Pool[T]) Workers() int {
	return p.numWorkers
}

func (p *Pool[T]) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		var result Result[T]
		if err := p.ctx.Err(); err != nil {
			result = Result[T]{Key: job.Key, Err: err}
		} else {
			result = p.processJob(job, id)
		}

		// results are always delivered so every submitted key is accounted for
		p.resultQueue <- result
	}
}

func (p *Pool[T]) processJob(job Job, workerID int) Result[T] {
	start := time.Now()
	result := Result[T]{Key: job.Key}

	if p.sink != nil && p.sink.Has(job.Key) {
		p.logger.DebugWithFields("result already saved", map[string]interface{}{
			"worker_id": workerID,
			"key":       job.Key,
		})
		result.Skipped = true
		return result
	}

	value, err := p.fetch(p.ctx, job.Key)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		p.logger.WarnWithFields("job failed", map[string]interface{}{
			"worker_id": workerID,
			"key":       job.Key,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
		return result
	}
	result.Value = value

	if p.sink != nil {
		if err := p.sink.Put(job.Key, value); err != nil {
			result.Err = fmt.Errorf("save failed: %w", err)
			return result
		}
	}

	p.logger.DebugWithFields("job completed", map[string]interface{}{
		"worker_id": workerID,
		"key":       job.Key,
		"duration":  result.Duration,
	})
	return result
}

// Run fetches every key on numWorkers workers and returns the results in the order of keys
func Run[T any](ctx context.Context, numWorkers int, keys []string, fetch FetchFunc[T], sink Sink, log logger.Logger) []Result[T] {
	pool := NewPool(ctx, numWorkers, fetch, sink, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, key := range keys {
			if err := pool.Submit(Job{Key: key}); err != nil {
				return
			}
		}
	}()

	byKey := make(map[string]Result[T], len(keys))
	for result := range pool.Results() {
		byKey[result.Key] = result
	}

	results := make([]Result[T], len(keys))
	for i, key := range keys {
		result, ok := byKey[key]
		if !ok {
			result = Result[T]{Key: key, Err: ErrPoolClosed}
			if err := ctx.Err(); err != nil {
				result.Err = err
			}
		}
		results[i] = result
	}
	return results
}
