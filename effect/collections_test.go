package effect

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failAbove returns an effectful function that records which items it saw and
// fails for items greater than the limit.
func failAbove(limit int, seen *[]int) func(int) IO[int] {
	return func(n int) IO[int] {
		return Attempt(func() (int, error) {
			*seen = append(*seen, n)
			if n > limit {
				return 0, fmt.Errorf("item %d over limit", n)
			}
			return n * 2, nil
		})
	}
}

func TestForeach(t *testing.T) {
	t.Run("collects results in order", func(t *testing.T) {
		var seen []int
		eff := Foreach([]int{1, 2, 3}, failAbove(10, &seen))

		values, err := eff.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 6}, values)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("does nothing before run", func(t *testing.T) {
		var seen []int
		_ = Foreach([]int{1, 2, 3}, failAbove(10, &seen))
		assert.Empty(t, seen)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		var seen []int
		eff := Foreach([]int{2, 4, 5, 6, 8}, failAbove(4, &seen))

		_, err := eff.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "item 5")
		// 6 and 8 were never touched.
		assert.Equal(t, []int{2, 4, 5}, seen)
	})

	t.Run("empty input yields empty result", func(t *testing.T) {
		values, err := Foreach(nil, failAbove(10, &[]int{})).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, values)
		assert.NotNil(t, values)
	})
}

func TestCollectAll(t *testing.T) {
	t.Run("collects in order", func(t *testing.T) {
		effects := []IO[string]{Succeed("a"), Succeed("b"), Succeed("c")}
		values, err := CollectAll(effects).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, values)
	})

	t.Run("stops at first failure", func(t *testing.T) {
		ran := false
		effects := []IO[string]{
			Succeed("a"),
			Fail[string](errBoom),
			Sync(func() string { ran = true; return "c" }),
		}
		_, err := CollectAll(effects).Run(context.Background())
		assert.ErrorIs(t, err, errBoom)
		assert.False(t, ran)
	})
}

func TestFilter(t *testing.T) {
	isEven := func(n int) IO[bool] { return Succeed(n%2 == 0) }

	t.Run("keeps matching items in order", func(t *testing.T) {
		kept, err := Filter([]int{1, 2, 3, 4, 5, 6}, isEven).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 6}, kept)
	})

	t.Run("predicate failure stops processing", func(t *testing.T) {
		var seen []int
		pred := func(n int) IO[bool] {
			return Attempt(func() (bool, error) {
				seen = append(seen, n)
				if n == 3 {
					return false, errBoom
				}
				return true, nil
			})
		}
		_, err := Filter([]int{1, 2, 3, 4}, pred).Run(context.Background())
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})
}

func TestForall(t *testing.T) {
	t.Run("true when all pass", func(t *testing.T) {
		ok, err := Forall([]int{2, 4, 6}, func(n int) IO[bool] {
			return Succeed(n%2 == 0)
		}).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stops at first false", func(t *testing.T) {
		var seen []int
		ok, err := Forall([]int{2, 4, 5, 6}, func(n int) IO[bool] {
			return Sync(func() bool {
				seen = append(seen, n)
				return n%2 == 0
			})
		}).Run(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []int{2, 4, 5}, seen)
	})

	t.Run("propagates predicate failure", func(t *testing.T) {
		_, err := Forall([]int{1}, func(int) IO[bool] {
			return Fail[bool](errBoom)
		}).Run(context.Background())
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestPartition(t *testing.T) {
	t.Run("processes every item", func(t *testing.T) {
		var seen []int
		eff := Partition([]int{2, 4, 5, 6, 9}, failAbove(4, &seen))

		out, err := eff.Run(context.Background())
		require.NoError(t, err)
		// Element failures never short-circuit a partition.
		assert.Equal(t, []int{2, 4, 5, 6, 9}, seen)
		assert.Equal(t, []int{4, 8}, out.Successes)
		require.Len(t, out.Failures, 3)
		assert.Contains(t, out.Failures[0].Error(), "item 5")
	})

	t.Run("all successes", func(t *testing.T) {
		out, err := Partition([]int{1, 2}, func(n int) IO[int] {
			return Succeed(n)
		}).Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, out.Failures)
		assert.Equal(t, []int{1, 2}, out.Successes)
	})

	t.Run("lazy before run", func(t *testing.T) {
		var seen []int
		_ = Partition([]int{1, 2, 3}, failAbove(0, &seen))
		assert.Empty(t, seen)
	})
}
