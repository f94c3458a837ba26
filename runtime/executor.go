package runtime

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// GoExecutor is the default Executor: it spawns each task on its own
// goroutine, bounded by a weighted semaphore so a burst of slow consumer
// delegates cannot pile up unboundedly (grounded on
// mwaaas-machinery/v1/brokers/amqp.go's use of golang.org/x/sync/semaphore
// to bound concurrent broker work).
type GoExecutor struct {
	sem *semaphore.Weighted
}

// NewGoExecutor builds a GoExecutor that runs at most maxConcurrent tasks at
// once. maxConcurrent <= 0 means unbounded.
func NewGoExecutor(maxConcurrent int64) *GoExecutor {
	if maxConcurrent <= 0 {
		return &GoExecutor{}
	}
	return &GoExecutor{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Spawn runs task on a new goroutine, blocking the caller only long enough
// to acquire a semaphore slot when one is configured.
func (e *GoExecutor) Spawn(task func()) {
	if e.sem == nil {
		go task()
		return
	}
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	go func() {
		defer e.sem.Release(1)
		task()
	}()
}
