package actorutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var errNilResult = errors.New("background task returned no result")

// SafeBackgroundTask runs blocking IO off the actor goroutine and delivers
// its outcome as a message. A panic in fn is turned into an error.
type SafeBackgroundTask[T any] struct {
	root    *actor.RootContext
	fn      func() (*T, error)
	timeout time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		root: ctx.ActorSystem().Root,
		fn:   fn,
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = timeout
	return t
}

// Recover maps a failure (error, panic or timeout) to a message. Without
// it failures are dropped.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

// PipeTo starts the task and sends its result to pid.
func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	go func() {
		if value, ok := t.Run(); ok {
			t.root.Send(pid, value)
		}
	}()
}

// Run blocks until the task is done. ok is false when it failed and there
// is nothing to recover with.
func (t *SafeBackgroundTask[T]) Run() (value T, ok bool) {
	task := io.Map(io.Eval(t.fn), func(a *T) T {
		if a == nil {
			panic(errNilResult)
		}
		return *a
	})
	if t.timeout > 0 {
		task = io.WithTimeout[T](t.timeout)(task)
	}

	result := io.RunSync(task)
	if result.Error == nil {
		return result.Value, true
	}
	if t.recover == nil {
		return value, false
	}
	return t.recover(fmt.Errorf("background task: %w", result.Error)), true
}
