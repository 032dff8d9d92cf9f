package raft

import "fmt"

// TaskSpawner decouples the state-loop thread from event delivery and
// peer RPC calls: given a name and a one-shot work item, it executes the
// item to completion on some other execution context. Failure to spawn
// is surfaced as a TaskSpawn error but must never crash the node.
type TaskSpawner interface {
	Spawn(name string, fn func()) error
}

// GoroutineSpawner is the simplest TaskSpawner: `go fn()`. It never
// fails to spawn, since goroutines are not a bounded resource the way a
// worker pool's job queue is.
type GoroutineSpawner struct{}

func (GoroutineSpawner) Spawn(_ string, fn func()) error {
	go fn()
	return nil
}

// WorkerPoolSpawner bounds concurrent event/RPC fan-out to a fixed
// number of workers pulling from a buffered job queue instead of
// spawning unbounded goroutines per event. Spawn only fails (TaskSpawn)
// when the queue is full and the pool is saturated, never silently
// dropping work.
type WorkerPoolSpawner struct {
	jobs chan func()
	done chan struct{}
}

// NewWorkerPoolSpawner starts numWorkers goroutines servicing a job
// queue of the given capacity.
func NewWorkerPoolSpawner(numWorkers, queueCapacity int) *WorkerPoolSpawner {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1
	}
	p := &WorkerPoolSpawner{
		jobs: make(chan func(), queueCapacity),
		done: make(chan struct{}),
	}
	for w := 0; w < numWorkers; w++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPoolSpawner) worker() {
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job()
		case <-p.done:
			return
		}
	}
}

// Spawn enqueues fn for execution by one of the pool's workers. It
// returns a TaskSpawn error immediately if the queue is full rather than
// blocking the state-loop thread.
func (p *WorkerPoolSpawner) Spawn(name string, fn func()) error {
	select {
	case p.jobs <- fn:
		return nil
	default:
		return newTaskSpawnError(fmt.Errorf("worker pool saturated, dropping task %q", name))
	}
}

// Close signals every worker to exit without waiting for the queue to
// drain: jobs still queued may never run, and Spawn keeps enqueuing
// after Close.
func (p *WorkerPoolSpawner) Close() {
	close(p.done)
}

// SyncSpawner runs fn synchronously on the calling goroutine. It exists
// for deterministic tests that want event handling and RPC round-trips
// to complete before the calling assertion runs; it must never be used
// by a state loop expecting true off-thread execution since it would
// reintroduce the blocking the spawner abstraction exists to avoid.
type SyncSpawner struct{}

func (SyncSpawner) Spawn(_ string, fn func()) error {
	fn()
	return nil
}
