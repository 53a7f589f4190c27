package effect

import "context"

// Collection effects are sequential and lazy. Constructing one performs no
// work; elements are processed in input order when the effect runs, and the
// first element failure stops processing. Partition is the exception, it
// always processes every element.

// Partitioned splits element results by outcome, preserving encounter order
// within each slice.
type Partitioned[B any] struct {
	Failures  []error
	Successes []B
}

// Foreach applies an effectful function to every item, collecting the
// results in order. Processing stops at the first failure.
func Foreach[A, B any](items []A, f func(A) IO[B]) IO[[]B] {
	return IO[[]B]{compute: func(ctx context.Context) ([]B, error) {
		results := make([]B, 0, len(items))
		for _, item := range items {
			value, err := f(item).Run(ctx)
			if err != nil {
				return nil, err
			}
			results = append(results, value)
		}
		return results, nil
	}}
}

// CollectAll runs pre-built effects in order and collects their values,
// stopping at the first failure.
func CollectAll[A any](effects []IO[A]) IO[[]A] {
	return IO[[]A]{compute: func(ctx context.Context) ([]A, error) {
		results := make([]A, 0, len(effects))
		for _, eff := range effects {
			value, err := eff.Run(ctx)
			if err != nil {
				return nil, err
			}
			results = append(results, value)
		}
		return results, nil
	}}
}

// Filter keeps the items whose effectful predicate yields true, preserving
// input order. A predicate failure stops processing.
func Filter[A any](items []A, pred func(A) IO[bool]) IO[[]A] {
	return IO[[]A]{compute: func(ctx context.Context) ([]A, error) {
		kept := make([]A, 0, len(items))
		for _, item := range items {
			keep, err := pred(item).Run(ctx)
			if err != nil {
				return nil, err
			}
			if keep {
				kept = append(kept, item)
			}
		}
		return kept, nil
	}}
}

// Forall reports whether the predicate holds for every item. The first false
// result or failure stops processing.
func Forall[A any](items []A, pred func(A) IO[bool]) IO[bool] {
	return IO[bool]{compute: func(ctx context.Context) (bool, error) {
		for _, item := range items {
			ok, err := pred(item).Run(ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}}
}

// Partition applies an effectful function to every item, splitting outcomes
// into failures and successes. Unlike Foreach it never short-circuits, and
// element failures do not fail the partition itself.
func Partition[A, B any](items []A, f func(A) IO[B]) IO[Partitioned[B]] {
	return IO[Partitioned[B]]{compute: func(ctx context.Context) (Partitioned[B], error) {
		out := Partitioned[B]{
			Failures:  make([]error, 0),
			Successes: make([]B, 0, len(items)),
		}
		for _, item := range items {
			value, err := f(item).Run(ctx)
			if err != nil {
				out.Failures = append(out.Failures, err)
				continue
			}
			out.Successes = append(out.Successes, value)
		}
		return out, nil
	}}
}
