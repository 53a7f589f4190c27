package effect

import (
	"context"
	"fmt"
	"time"
)

// IO describes a computation that, when run, yields a value of type A or an
// error. Building an IO performs no work. Nothing executes until Run is
// called, so values can be freely composed, passed around, and retried.
type IO[A any] struct {
	compute func(ctx context.Context) (A, error)
}

// Unit is the result type of effects that produce no useful value.
type Unit struct{}

// Pair holds the two results of a Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// TimedResult wraps a result with the wall-clock duration it took to produce.
type TimedResult[A any] struct {
	Value   A
	Elapsed time.Duration
}

// PanicError is the error produced when Attempt or FromFunc recovers a panic
// raised by the wrapped function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.Value)
}

// Succeed returns an effect that always yields the given value.
func Succeed[A any](value A) IO[A] {
	return IO[A]{compute: func(context.Context) (A, error) {
		return value, nil
	}}
}

// Fail returns an effect that always fails with the given error.
func Fail[A any](err error) IO[A] {
	return IO[A]{compute: func(context.Context) (A, error) {
		var zero A
		return zero, err
	}}
}

// FailMsg is Fail with fmt.Errorf formatting.
func FailMsg[A any](format string, args ...any) IO[A] {
	return Fail[A](fmt.Errorf(format, args...))
}

// Done returns an effect that succeeds with no useful value.
func Done() IO[Unit] {
	return Succeed(Unit{})
}

// Sync lifts an infallible function into an effect. The function runs on
// every Run call.
func Sync[A any](f func() A) IO[A] {
	return IO[A]{compute: func(context.Context) (A, error) {
		return f(), nil
	}}
}

// Attempt lifts a fallible function into an effect. A panic inside f is
// recovered and surfaced as a *PanicError instead of crashing the run.
func Attempt[A any](f func() (A, error)) IO[A] {
	return IO[A]{compute: func(context.Context) (value A, err error) {
		defer func() {
			if r := recover(); r != nil {
				var zero A
				value = zero
				err = &PanicError{Value: r}
			}
		}()
		return f()
	}}
}

// FromFunc lifts a context-aware fallible function into an effect, with the
// same panic recovery as Attempt. This is the bridge used to wrap step
// handlers and other blocking operations.
func FromFunc[A any](f func(ctx context.Context) (A, error)) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (value A, err error) {
		defer func() {
			if r := recover(); r != nil {
				var zero A
				value = zero
				err = &PanicError{Value: r}
			}
		}()
		return f(ctx)
	}}
}

// From captures an already-computed (value, error) pair as an effect. Note
// that the pair is evaluated at the call site, not at Run time; use Attempt
// when the computation itself must stay lazy.
func From[A any](value A, err error) IO[A] {
	if err != nil {
		return Fail[A](err)
	}
	return Succeed(value)
}

// Run evaluates the effect once. A context that is already cancelled fails
// the run before any stage executes. Effects are reusable: calling Run again
// re-evaluates the whole chain.
func (io IO[A]) Run(ctx context.Context) (A, error) {
	var zero A
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if io.compute == nil {
		return zero, nil
	}
	return io.compute(ctx)
}

// Recover intercepts a failure and continues with the effect returned by the
// handler. Successful runs bypass the handler entirely.
func (io IO[A]) Recover(handler func(error) IO[A]) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (A, error) {
		value, err := io.Run(ctx)
		if err == nil {
			return value, nil
		}
		return handler(err).Run(ctx)
	}}
}

// OrElse continues with the fallback effect when this one fails.
func (io IO[A]) OrElse(fallback IO[A]) IO[A] {
	return io.Recover(func(error) IO[A] { return fallback })
}

// IsSuccess runs the effect and reports whether it succeeded, swallowing any
// failure.
func (io IO[A]) IsSuccess() IO[bool] {
	return IO[bool]{compute: func(ctx context.Context) (bool, error) {
		_, err := io.Run(ctx)
		return err == nil, nil
	}}
}

// IsFailure runs the effect and reports whether it failed, swallowing any
// failure.
func (io IO[A]) IsFailure() IO[bool] {
	return IO[bool]{compute: func(ctx context.Context) (bool, error) {
		_, err := io.Run(ctx)
		return err != nil, nil
	}}
}

// Timed runs the effect and pairs its result with the elapsed wall time.
// Failures propagate unchanged. It is a package function rather than an
// IO[A] method because the IO[TimedResult[A]] result would make the method
// an illegal recursive instantiation of the receiver's type.
func Timed[A any](eff IO[A]) IO[TimedResult[A]] {
	return IO[TimedResult[A]]{compute: func(ctx context.Context) (TimedResult[A], error) {
		start := time.Now()
		value, err := eff.Run(ctx)
		if err != nil {
			return TimedResult[A]{}, err
		}
		return TimedResult[A]{Value: value, Elapsed: time.Since(start)}, nil
	}}
}
