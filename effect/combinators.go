package effect

import "context"

// Type-changing combinators live here as package functions, because Go
// methods cannot introduce new type parameters.

// Map transforms the success value with a pure function.
func Map[A, B any](eff IO[A], f func(A) B) IO[B] {
	return IO[B]{compute: func(ctx context.Context) (B, error) {
		value, err := eff.Run(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(value), nil
	}}
}

// MapTo replaces the success value with the result of f, ignoring the
// previous value.
func MapTo[A, B any](eff IO[A], f func() B) IO[B] {
	return Map(eff, func(A) B { return f() })
}

// Discard drops the success value, keeping only the effect's outcome.
func Discard[A any](eff IO[A]) IO[Unit] {
	return MapTo(eff, func() Unit { return Unit{} })
}

// FlatMap sequences a dependent effect after a successful one. A failure in
// either stage short-circuits the chain.
func FlatMap[A, B any](eff IO[A], f func(A) IO[B]) IO[B] {
	return IO[B]{compute: func(ctx context.Context) (B, error) {
		value, err := eff.Run(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(value).Run(ctx)
	}}
}

// Then runs next after eff succeeds, discarding eff's value.
func Then[A, B any](eff IO[A], next IO[B]) IO[B] {
	return FlatMap(eff, func(A) IO[B] { return next })
}

// Zip runs both effects in order and pairs their results. If the first
// fails, the second never runs.
func Zip[A, B any](first IO[A], second IO[B]) IO[Pair[A, B]] {
	return FlatMap(first, func(a A) IO[Pair[A, B]] {
		return Map(second, func(b B) Pair[A, B] {
			return Pair[A, B]{First: a, Second: b}
		})
	})
}

// Match folds both outcomes into a plain value, producing an effect that
// cannot fail.
func Match[A, B any](eff IO[A], onSuccess func(A) B, onFailure func(error) B) IO[B] {
	return IO[B]{compute: func(ctx context.Context) (B, error) {
		value, err := eff.Run(ctx)
		if err != nil {
			return onFailure(err), nil
		}
		return onSuccess(value), nil
	}}
}

// MatchIO folds both outcomes into follow-up effects, allowing recovery and
// continuation to themselves be effectful.
func MatchIO[A, B any](eff IO[A], onSuccess func(A) IO[B], onFailure func(error) IO[B]) IO[B] {
	return IO[B]{compute: func(ctx context.Context) (B, error) {
		value, err := eff.Run(ctx)
		if err != nil {
			return onFailure(err).Run(ctx)
		}
		return onSuccess(value).Run(ctx)
	}}
}

// ChainAll sequences same-typed effects in order and yields the last value.
// With no effects it succeeds with the zero value. The first failure stops
// the chain.
func ChainAll[A any](effects ...IO[A]) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (A, error) {
		var last A
		for _, eff := range effects {
			value, err := eff.Run(ctx)
			if err != nil {
				var zero A
				return zero, err
			}
			last = value
		}
		return last, nil
	}}
}

// Pipeline threads a value through dependent stages, starting from the zero
// value of A. Each stage sees the previous stage's result.
func Pipeline[A any](stages ...func(A) IO[A]) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (A, error) {
		var current A
		for _, stage := range stages {
			value, err := stage(current).Run(ctx)
			if err != nil {
				var zero A
				return zero, err
			}
			current = value
		}
		return current, nil
	}}
}
