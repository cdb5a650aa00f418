// Package queue defines a minimal background-task port so the chat core can
// hand work off without knowing the broker. The asynq adapter is the only
// production implementation; tests use in-process fakes.
package queue

import "context"

// Task is a background job with a stable type identifier and opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a task. A non-nil error signals retry per adapter policy,
// so handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// Options control enqueue behavior. Zero values mean "unspecified".
type Options struct {
	Queue    string
	MaxRetry int
}

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts Options) (id string, err error)
	Close() error
}

// Server runs background workers. Run blocks until the context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
