// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrQueueFull indicates every queue slot is taken
	ErrQueueFull = errors.New("executor queue is full")

	// ErrLoopStopped indicates the event loop no longer accepts events
	ErrLoopStopped = errors.New("event loop is stopped")
)
