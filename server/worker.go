package server

import (
	"context"
	"errors"
	"fmt"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("machine worker stopped")

// workRequest is a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func() (any, error)
	done chan workResult
}

// workResult holds the return value from a worker operation.
type workResult struct {
	value any
	err   error
}

// MachineWorker serializes all machine access through a single
// goroutine. Machines are not safe for concurrent use, and a session
// may be ticked by several RPCs at once.
type MachineWorker struct {
	requests chan workRequest
	quit     chan struct{}
}

// NewMachineWorker creates a MachineWorker and starts the processing
// goroutine.
func NewMachineWorker() *MachineWorker {
	w := &MachineWorker{
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *MachineWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, turning a panic into an error.
func (w *MachineWorker) execute(fn func() (any, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("machine worker recovered: %v", r)
			result = workResult{err: fmt.Errorf("internal error: %v", r)}
		}
	}()
	v, err := fn()
	return workResult{value: v, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until
// it completes or ctx is done.
func (w *MachineWorker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine.
func (w *MachineWorker) Stop() {
	close(w.quit)
}
